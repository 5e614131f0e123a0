package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bidwatch/bidcard/internal/store"
)

var (
	announcementsSource string
	announcementsLimit  int
)

var announcementsCmd = &cobra.Command{
	Use:   "announcements",
	Short: "List recently ingested announcements",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		anns, err := st.ListAnnouncements(ctx, store.AnnouncementFilter{
			Source: announcementsSource,
			Limit:  announcementsLimit,
		})
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"ID", "Date", "Title", "Buyer", "URL"})
		for _, a := range anns {
			t.AppendRow(table.Row{a.ID, a.PublishDate, a.Title, a.BuyerName, a.URL})
		}
		t.AppendFooter(table.Row{"Total", len(anns)})
		t.Render()
		return nil
	},
}

func init() {
	announcementsCmd.Flags().StringVar(&announcementsSource, "source", "", "filter by source")
	announcementsCmd.Flags().IntVar(&announcementsLimit, "limit", 0, "max rows (default 100)")
	rootCmd.AddCommand(announcementsCmd)
}
