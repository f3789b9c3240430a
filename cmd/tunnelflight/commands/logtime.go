package commands

import (
	"fmt"
	"time"
	"tunnelflight/internal/scrapers/tunnelflight"

	"github.com/spf13/cobra"
)

var (
	logTunnel  *int
	logMinutes *int
	logComment *string
	logDate    *string
)

func init() {
	logTunnel = logTimeCmd.Flags().IntP("tunnel", "t", 0, "The tunnel id, see the tunnels command.")
	logMinutes = logTimeCmd.Flags().IntP("minutes", "m", 0, "Minutes flown, 1 to 120.")
	logComment = logTimeCmd.Flags().String("comment", "", "An optional comment.")
	logDate = logTimeCmd.Flags().String("date", "", "The day flown as YYYY-MM-DD, defaults to today.")
	logTimeCmd.MarkFlagRequired("tunnel")
	logTimeCmd.MarkFlagRequired("minutes")
	rootCmd.AddCommand(logTimeCmd)
}

func parseEntryDate(value string, location *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	date, err := time.ParseInLocation(time.DateOnly, value, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return date, nil
}

var logTimeCmd = &cobra.Command{
	Use:   "log-time --tunnel <id> --minutes <n> [--comment <text>] [--date YYYY-MM-DD]",
	Short: "Adds flight time to the logbook of an account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		entryDate, err := parseEntryDate(*logDate, env.clock.Location())
		if err != nil {
			return err
		}
		c, err := selectedClient()
		if err != nil {
			return err
		}

		result, err := c.LogFlightTime(cmd.Context(), tunnelflight.FlightLog{
			TunnelID:  *logTunnel,
			Minutes:   *logMinutes,
			Comment:   *logComment,
			EntryDate: entryDate,
		})
		if err != nil {
			return err
		}
		fmt.Printf(
			"logged %d minutes at %s on %s: %s\n",
			*logMinutes,
			result.TunnelName,
			formatEpoch(&result.EntryDate),
			orDash(result.Message),
		)
		return nil
	},
}
