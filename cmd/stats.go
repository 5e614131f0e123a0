package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Metric", "Value"})
		t.AppendRow(table.Row{"Announcements", stats.Announcements})
		t.AppendRow(table.Row{"Business cards", stats.Cards})
		t.AppendRow(table.Row{"Card mentions", stats.Mentions})
		for source, n := range stats.BySource {
			t.AppendRow(table.Row{"Source " + source, n})
		}
		t.Render()

		if len(stats.TopCompanies) > 0 {
			top := table.NewWriter()
			top.SetOutputMirror(os.Stdout)
			top.SetStyle(table.StyleRounded)
			top.AppendHeader(table.Row{"Company", "Cards"})
			for _, c := range stats.TopCompanies {
				top.AppendRow(table.Row{c.Company, c.Cards})
			}
			top.Render()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
