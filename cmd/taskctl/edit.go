package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskcal/internal/domain"
)

func newAddCmd() *cobra.Command {
	var title, date string

	cmd := &cobra.Command{
		Use:   "add TEXT...",
		Short: "Create a task on a date",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.NewTask{Title: title, Body: strings.Join(args, " ")}
			if date == "" {
				in.Date = domain.Today()
			} else {
				d, err := domain.ParseDay(date)
				if err != nil {
					return domain.Validation("date", err.Error())
				}
				in.Date = d
			}
			t, err := newSession().Create(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s on %s\n", t.ID, t.Key())
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "optional title")
	cmd.Flags().StringVar(&date, "date", "", "task date YYYY-MM-DD (default today)")
	return cmd
}

func newEditCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "edit ID TEXT...",
		Short: "Replace the title and text of a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := domain.TaskPatch{Title: title, Body: strings.Join(args[1:], " ")}
			t, err := newSession().Save(cmd.Context(), args[0], patch)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "optional title")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newSession().Delete(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Task deleted")
			return nil
		},
	}
}
