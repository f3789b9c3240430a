package commands

import (
	"fmt"
	"os"
	"time"
	"tunnelflight/internal/components/telemetry"
	"tunnelflight/internal/scrapers/tunnelflight"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"
)

const defaultPollCron = "*/30 * * * *"

type AccountConfig struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required"`
	// Password is prompted for when empty.
	Password string `json:"password"`
	AuthMode string `json:"auth_mode" validate:"omitempty,oneof=cookie token"`
}

type Config struct {
	BaseUrl  string          `json:"base_url" validate:"omitempty,url"`
	Accounts []AccountConfig `json:"accounts" validate:"required,min=1,dive"`

	SettleDelaySeconds    float64 `json:"settle_delay_seconds" validate:"gte=0"`
	RequestsPerSecond     float64 `json:"requests_per_second"`
	TimeoutSeconds        int     `json:"timeout_seconds" validate:"gte=0"`
	TunnelCacheTTLMinutes int     `json:"tunnel_cache_ttl_minutes" validate:"gte=0"`
	CloudflareBypass      bool    `json:"cloudflare_bypass"`

	// Timezone is an IANA name dates are rendered in, empty means local.
	Timezone string `json:"timezone"`
	PollCron string `json:"poll_cron"`

	Debug bool                 `json:"debug"`
	Otlp  telemetry.OtlpConfig `json:"otlp"`
}

func (c Config) validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for _, account := range c.Accounts {
		if _, ok := seen[account.ID]; ok {
			return fmt.Errorf("invalid config: duplicate account id %q", account.ID)
		}
		seen[account.ID] = struct{}{}
	}
	return nil
}

func (c Config) pollCron() string {
	if c.PollCron == "" {
		return defaultPollCron
	}
	return c.PollCron
}

// clientOptions builds the options of one account, the clock and telemetry
// are filled in by the caller.
func (c Config) clientOptions(account AccountConfig, password string) tunnelflight.ClientOptions {
	return tunnelflight.ClientOptions{
		BaseUrl:           c.BaseUrl,
		Credentials:       tunnelflight.NewCredentials(account.Username, password),
		AuthMode:          tunnelflight.AuthMode(account.AuthMode),
		CloudflareBypass:  c.CloudflareBypass,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		SettleDelay:       time.Duration(c.SettleDelaySeconds * float64(time.Second)),
		TunnelCacheTTL:    time.Duration(c.TunnelCacheTTLMinutes) * time.Minute,
	}
}

func (c Config) account(id string) (AccountConfig, error) {
	if id == "" {
		return c.Accounts[0], nil
	}
	for _, account := range c.Accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return AccountConfig{}, fmt.Errorf("no account %q in config", id)
}

func promptPassword(account AccountConfig) (string, error) {
	if account.Password != "" {
		return account.Password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("account %q has no password and stdin is not a terminal", account.ID)
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", account.Username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(password) == 0 {
		return "", fmt.Errorf("account %q: empty password", account.ID)
	}
	return string(password), nil
}
