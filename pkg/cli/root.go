// Package cli wires the planpilot commands: the interactive console
// (default), a one-shot run, and the run history listing.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/entrhq/planpilot/pkg/auth"
	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/config"
	"github.com/entrhq/planpilot/pkg/history"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/run"
	"github.com/entrhq/planpilot/pkg/session"
	"github.com/entrhq/planpilot/pkg/target"
)

var cfgFile string

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "planpilot",
		Short: "Chat-driven automation for the production planning dashboard",
		Long: `planpilot remote-controls the production planning dashboard through a
headless browser: it logs in (pausing for an out-of-band verification code
when one is required), reads per-category completion state, and checks off
every outstanding task item.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.planpilot/config.yaml)")
	root.AddCommand(newConsoleCmd(), newRunCmd(), newHistoryCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openHistory opens the run log. History is a convenience; failure to open
// it is logged and the process continues without it.
func openHistory(cfg *config.Config) *history.DB {
	db, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return nil
	}
	return db
}

func buildOrchestrator(cfg *config.Config, codes *twofactor.Manager, hist *history.DB, notifier notify.Notifier) (*run.Orchestrator, error) {
	store, err := session.NewFileStore(cfg.AuthStatePath)
	if err != nil {
		return nil, err
	}

	creds := auth.Credentials{Email: cfg.Email, Password: cfg.Password}
	opts := []run.Option{
		run.WithHeadless(cfg.Headless),
		run.WithURLs(target.DefaultURLs(cfg.BaseURL)),
	}
	if hist != nil {
		opts = append(opts, run.WithRecorder(hist))
	}
	return run.NewOrchestrator(store, codes, notifier, creds, opts...), nil
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := history.Open(cfg.HistoryDBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.Recent(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %s  %s  %d categories, %d items",
					rec.StartedAt.Format("2006-01-02 15:04"), rec.ID, rec.Status,
					rec.CategoriesWalked, rec.ItemsChecked)
				if rec.Failure != "" {
					line += "  (" + rec.Failure + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}
