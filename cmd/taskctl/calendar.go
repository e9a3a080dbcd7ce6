package main

import (
	"github.com/spf13/cobra"

	"taskcal/internal/domain"
)

func newCalendarCmd() *cobra.Command {
	var month, date string

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month with the days that hold tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			if err := s.Refresh(ctx); err != nil {
				return describe(err)
			}
			if month != "" {
				m, err := domain.ParseMonth(month)
				if err != nil {
					return domain.Validation("month", err.Error())
				}
				s.ShowMonth(m)
			}
			renderCalendar(cmd.OutOrStdout(), s.Calendar())
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month to show YYYY-MM (default: selected date's month)")
	cmd.Flags().StringVar(&date, "date", "", "selected date YYYY-MM-DD (default today)")
	return cmd
}
