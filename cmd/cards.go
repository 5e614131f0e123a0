package main

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bidwatch/bidcard/internal/store"
)

var (
	cardsCompany string
	cardsLike    bool
	cardsLimit   int
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List business cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cards, err := st.QueryCards(ctx, store.CardQuery{
			Company: cardsCompany,
			Like:    cardsLike,
			Limit:   cardsLimit,
		})
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"ID", "Company", "Contact", "Phones", "Emails", "Announcements"})
		for _, c := range cards {
			t.AppendRow(table.Row{
				c.ID,
				c.Company,
				c.ContactName,
				strings.Join(c.Phones, "\n"),
				strings.Join(c.Emails, "\n"),
				c.Announcements,
			})
		}
		t.AppendFooter(table.Row{"Total", len(cards)})
		t.Render()
		return nil
	},
}

func init() {
	cardsCmd.Flags().StringVar(&cardsCompany, "company", "", "filter by company name")
	cardsCmd.Flags().BoolVar(&cardsLike, "like", false, "substring match instead of exact")
	cardsCmd.Flags().IntVar(&cardsLimit, "limit", 0, "max rows (default 200)")
	rootCmd.AddCommand(cardsCmd)
}
