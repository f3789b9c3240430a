package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"tunnelflight/internal/scrapers/tunnelflight"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var profileJson *bool

func init() {
	profileJson = profileCmd.Flags().Bool("json", false, "Print the profile as json instead of tables.")
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile [--account <id>] [--json]",
	Short: "Fetches and prints the flyer profile of an account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := selectedClient()
		if err != nil {
			return err
		}
		profile, err := c.UserProfile(cmd.Context())
		if err != nil {
			return err
		}

		if *profileJson {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(profile)
		}
		printProfile(profile)
		return nil
	},
}

func daysLabel(days int, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%d days", days)
}

func printProfile(profile tunnelflight.Profile) {
	now := env.clock.Now()

	summary := newTable()
	summary.SetTitle(profile.ScreenName)
	summary.AppendRows([]table.Row{
		{"Member ID", profile.MemberID},
		{"Name", orDash(profile.RealName)},
		{"Email", orDash(profile.Email)},
		{"Role", orDash(profile.Role)},
		{"Home tunnel", orDash(profile.HomeTunnel)},
		{"Country", orDash(profile.Country)},
		{"Flight time", orDash(profile.FlightTimeDisplay())},
		{"Last flight", formatEpoch(profile.LastFlight)},
		{"Member since", formatEpoch(profile.JoinDate)},
		{"Flyer currency", profile.FlyerCurrencyStatus},
		{"Currency renewal", orDash(profile.CurrencyRenewalDate)},
	})
	currencyDays, ok := profile.CurrencyDaysRemaining(now)
	summary.AppendRow(table.Row{"Currency remaining", daysLabel(currencyDays, ok)})
	summary.AppendRows([]table.Row{
		{"Payment", orDash(profile.PaymentStatus)},
		{"Payment expiry", orDash(profile.PaymentExpiryDate)},
	})
	paymentDays, ok := profile.PaymentDaysRemaining(now)
	summary.AppendRow(table.Row{"Payment remaining", daysLabel(paymentDays, ok)})
	summary.Render()

	skills := newTable()
	skills.SetTitle("Skills")
	skills.AppendHeader(table.Row{"Skill", "Level", "Status", "Portal value"})
	for _, skill := range profile.Skills.All() {
		skills.AppendRow(table.Row{skill.Name, skill.Level, skill.Status, skill.Raw})
	}
	skills.Render()

	categories := profile.CategorySummaries()
	if len(categories) == 0 {
		return
	}
	logbook := newTable()
	logbook.SetTitle("Open logbook entries")
	logbook.AppendHeader(table.Row{"Category", "Entries", "Statuses", "Skills"})
	for _, category := range categories {
		var statuses []string
		for status, count := range category.Statuses {
			statuses = append(statuses, fmt.Sprintf("%s: %d", status, count))
		}
		logbook.AppendRow(table.Row{
			category.Category,
			category.Count,
			strings.Join(statuses, ", "),
			strings.Join(category.Skills, ", "),
		})
	}
	logbook.Render()
}
