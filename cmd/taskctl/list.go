package main

import (
	"github.com/spf13/cobra"

	"taskcal/internal/domain"
)

func newListCmd() *cobra.Command {
	var filter, date string
	var page int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks grouped by day, one page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := domain.ParseFilterMode(filter)
			if err != nil {
				return err
			}
			s := newSession()
			ctx := cmd.Context()
			if date != "" {
				d, err := domain.ParseDay(date)
				if err != nil {
					return domain.Validation("date", err.Error())
				}
				if err := s.SelectDate(ctx, d); err != nil {
					return describe(err)
				}
			}
			if err := s.SetFilter(ctx, mode); err != nil {
				return describe(err)
			}
			s.GotoPage(page)
			renderPage(cmd.OutOrStdout(), s.Page(), columns)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", string(domain.FilterAll), "all, today or month")
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&page, "page", 1, "page to show")
	return cmd
}
