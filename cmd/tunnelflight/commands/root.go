package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"tunnelflight/internal/components/chrono"
	"tunnelflight/internal/components/telemetry"
	"tunnelflight/internal/scrapers/tunnelflight"
	"tunnelflight/pkg/configutil"
	"tunnelflight/pkg/restyutil"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	accountId  *string
	allFlag    *bool
	dumpHttp   *string
)

// env is what every command works with once the config has been loaded.
var env struct {
	config   Config
	clock    chrono.StandardImpl
	tel      telemetry.API
	registry *tunnelflight.Registry
	dump     restyutil.Output
	shutdown func(context.Context) error
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "tunnelflight.json5", "The config file, a <name>.local.json5 next to it overrides it.")
	accountId = rootCmd.PersistentFlags().StringP("account", "a", "", "The account id to use, defaults to the first account in the config.")
	allFlag = rootCmd.PersistentFlags().Bool("all", false, "Use every account in the config, where a command supports it.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every http exchange (credentials redacted) into this directory.")
}

var rootCmd = &cobra.Command{
	Use:           "tunnelflight",
	Short:         "tunnelflight is a CLI for the IBA tunnelflight member portal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configutil.ReadConfig[Config](*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		err = cfg.validate()
		if err != nil {
			return err
		}
		env.config = cfg

		telemetry.InitSlog(cfg.Debug)
		env.tel = telemetry.NewSlogAPI(nil)

		env.shutdown, err = telemetry.SetupTracing(cmd.Context(), "tunnelflight", cfg.Otlp)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}

		env.clock, err = chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}

		if *dumpHttp != "" {
			env.dump, err = restyutil.NewFilesystemOutput(*dumpHttp)
			if err != nil {
				return fmt.Errorf("dump-http: %w", err)
			}
		}

		env.registry = tunnelflight.NewRegistry()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		env.registry.Close()
		return env.shutdown(context.WithoutCancel(cmd.Context()))
	},
}

// selectedAccounts is the --account, or every account with --all.
func selectedAccounts() ([]AccountConfig, error) {
	if *allFlag {
		return env.config.Accounts, nil
	}
	account, err := env.config.account(*accountId)
	if err != nil {
		return nil, err
	}
	return []AccountConfig{account}, nil
}

// client registers the account with the registry on first use.
func client(account AccountConfig) (*tunnelflight.Client, error) {
	existing, ok := env.registry.Get(account.ID)
	if ok {
		return existing, nil
	}
	password, err := promptPassword(account)
	if err != nil {
		return nil, err
	}
	opts := env.config.clientOptions(account, password)
	opts.Clock = env.clock
	opts.Telemetry = env.tel
	opts.HttpDump = env.dump
	return env.registry.Add(account.ID, opts)
}

// selectedClient is the client of the --account.
func selectedClient() (*tunnelflight.Client, error) {
	account, err := env.config.account(*accountId)
	if err != nil {
		return nil, err
	}
	return client(account)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Debug("command failed", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
