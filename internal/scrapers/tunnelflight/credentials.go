package tunnelflight

import (
	"log/slog"
	"strings"
	"tunnelflight/internal/components/assert"
)

// Credentials is the username/password pair of one portal account. The
// username is case-insensitive and always kept lowercase.
type Credentials struct {
	username string
	password string
}

// NewCredentials panics if either value is empty.
func NewCredentials(username, password string) Credentials {
	username = strings.ToLower(strings.TrimSpace(username))
	assert.NotEmptyStr(username)
	assert.NotEmptyStr(password)
	return Credentials{username: username, password: password}
}

func (c Credentials) Username() string {
	return c.username
}

func (c Credentials) String() string {
	return c.username + ":<redacted>"
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.username),
		slog.String("password", "<redacted>"),
	)
}

type loginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Passcode       string `json:"passcode"`
	Enable2fa      bool   `json:"enable2fa"`
	CheckTwoFactor bool   `json:"checkTwoFactor"`
	PasscodeOption string `json:"passcodeOption"`
}

func (c Credentials) loginRequest() loginRequest {
	return loginRequest{
		Username:       c.username,
		Password:       c.password,
		CheckTwoFactor: true,
		PasscodeOption: "email",
	}
}
