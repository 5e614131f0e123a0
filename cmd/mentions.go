package main

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var mentionsCmd = &cobra.Command{
	Use:   "mentions <card-id>",
	Short: "Show the announcements a card was observed in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid card id %q", args[0])
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mentions, err := st.ListCardMentions(ctx, cardID)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Announcement", "Role", "Date", "Title", "URL"})
		for _, m := range mentions {
			t.AppendRow(table.Row{m.AnnouncementID, m.Role, m.PublishDate, m.Title, m.URL})
		}
		t.AppendFooter(table.Row{"Total", len(mentions)})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mentionsCmd)
}
