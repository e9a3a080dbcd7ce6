package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskcal/internal/domain"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print task changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient()
			// The stream is long lived.
			c.HTTP.Timeout = 0
			out := cmd.OutOrStdout()
			err := c.Watch(cmd.Context(), func(ev domain.TaskEvent) {
				at := time.UnixMicro(ev.Timestamp).Format(time.TimeOnly)
				if ev.Date != "" {
					fmt.Fprintf(out, "%s %s %s (%s)\n", at, ev.Type, ev.TaskID, ev.Date)
					return
				}
				fmt.Fprintf(out, "%s %s %s\n", at, ev.Type, ev.TaskID)
			})
			return describe(err)
		},
	}
}
