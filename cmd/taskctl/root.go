package main

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskcal/internal/client"
	"taskcal/internal/config"
	"taskcal/internal/view"
)

var (
	baseURL string
	token   string
	budget  int
	columns int
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Browse and edit calendar tasks from the terminal",
	Long: `taskctl talks to a taskcal API. It lists tasks grouped by day and split
into pages by their rendered height, draws the month calendar with the days
that hold tasks, and creates, edits or deletes tasks.

Defaults come from TASKCAL_CONFIG, TASKCAL_URL and TASKCAL_TOKEN.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Warnf("config: %v", err)
		cfg = config.Default()
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURL, "url", cfg.Client.BaseURL, "API base URL")
	pf.StringVar(&token, "token", cfg.Client.Token, "bearer token")
	pf.IntVar(&budget, "budget", cfg.Client.Budget, "page capacity budget in layout units (0 = default)")
	pf.IntVar(&columns, "columns", cfg.Client.Columns, "text width used to measure tasks (0 = default)")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCalendarCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newWatchCmd())
}

func newClient() *client.Client {
	c := client.New(baseURL, token)
	c.HTTP.Timeout = timeout
	return c
}

func newSession() *client.Session {
	sizer := view.DefaultTextSizer()
	if columns > 0 {
		sizer.Columns = columns
	}
	return client.NewSession(newClient(), client.Options{Budget: budget, Sizer: sizer})
}
