package commands

import (
	"fmt"
	"tunnelflight/internal/scrapers/tunnelflight"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	tunnelSearch  *string
	tunnelCountry *string
	tunnelFuzzy   *bool
)

func init() {
	tunnelSearch = tunnelsCmd.Flags().StringP("search", "s", "", "Only tunnels whose title or city contains this.")
	tunnelCountry = tunnelsCmd.Flags().StringP("country", "c", "", "Only tunnels whose country contains this.")
	tunnelFuzzy = tunnelsCmd.Flags().Bool("fuzzy", false, "Also match titles that are close to --search.")

	tunnelsCmd.AddCommand(tunnelCountriesCmd)
	tunnelsCmd.AddCommand(tunnelRefreshCmd)
	rootCmd.AddCommand(tunnelsCmd)
}

func printTunnels(tunnels []tunnelflight.Tunnel) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Title", "City", "Country", "Size", "Manufacturer", "Status"})
	for _, tunnel := range tunnels {
		t.AppendRow(table.Row{
			tunnel.ID,
			tunnel.Title,
			orDash(tunnel.City),
			tunnel.Country,
			tunnel.Size,
			tunnel.Manufacturer,
			tunnel.Status,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d tunnels", len(tunnels))})
	t.Render()
}

var tunnelsCmd = &cobra.Command{
	Use:   "tunnels [--search <text>] [--country <text>] [--fuzzy]",
	Short: "Lists the tunnels flight time can be logged at.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := selectedClient()
		if err != nil {
			return err
		}
		tunnels, err := c.FindTunnels(cmd.Context(), tunnelflight.TunnelQuery{
			Search:  *tunnelSearch,
			Country: *tunnelCountry,
			Fuzzy:   *tunnelFuzzy,
		})
		if err != nil {
			return err
		}
		printTunnels(tunnels)
		return nil
	},
}

var tunnelCountriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Lists every country that has a tunnel.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := selectedClient()
		if err != nil {
			return err
		}
		countries, err := c.TunnelCountries(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Country"})
		for _, country := range countries {
			t.AppendRow(table.Row{country})
		}
		t.Render()
		return nil
	},
}

var tunnelRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetches the tunnel list again, ignoring anything cached.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := selectedClient()
		if err != nil {
			return err
		}
		tunnels, err := c.RefreshTunnels(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("fetched %d tunnels\n", len(tunnels))
		return nil
	},
}
