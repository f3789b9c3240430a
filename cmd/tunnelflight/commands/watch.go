package commands

import (
	"fmt"
	"log/slog"
	"tunnelflight/internal/components/chrono"
	"tunnelflight/internal/coordinator"
	"tunnelflight/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

func logSnapshot(id string, snapshot coordinator.Snapshot) {
	profile := snapshot.Profile
	attrs := []any{
		"account", id,
		"flight_time", profile.FlightTimeDisplay(),
		"flyer_currency", profile.FlyerCurrencyStatus,
		"payment", profile.PaymentStatus,
		"updated_at", snapshot.UpdatedAt,
	}
	days, ok := profile.CurrencyDaysRemaining(env.clock.Now())
	if ok {
		attrs = append(attrs, "currency_days", days)
	}
	if snapshot.Stale {
		slog.Warn("profile is stale", append(attrs, "err", snapshot.Err)...)
		return
	}
	slog.Info("profile", attrs...)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--account <id> | --all]",
	Short: "Refreshes profiles on the configured poll_cron until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := selectedAccounts()
		if err != nil {
			return err
		}

		coord := coordinator.New(env.clock, env.tel)
		coord.OnRefresh = logSnapshot
		for _, account := range accounts {
			c, err := client(account)
			if err != nil {
				return err
			}
			coord.Track(account.ID, c)
		}

		ctx, cancel := serviceutil.SignalContext(cmd.Context())
		defer cancel()

		err = coord.RefreshAll(ctx)
		if err != nil {
			slog.Warn("initial refresh incomplete", "err", err)
		}

		cron := chrono.NewStandardCron(env.clock, env.tel)
		defer cron.Stop()
		err = coord.Schedule(cron, env.config.pollCron())
		if err != nil {
			return fmt.Errorf("poll_cron: %w", err)
		}
		slog.Info("watching", "accounts", coord.IDs(), "cron", env.config.pollCron())

		<-ctx.Done()
		return nil
	},
}
