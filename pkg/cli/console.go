package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/chat"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/run"
	"github.com/entrhq/planpilot/pkg/scheduler"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive command console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context())
		},
	}
}

func runConsole(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	codes := twofactor.NewManager(0)
	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	// The console is both the trigger surface and a notification sink, and
	// the orchestrator needs the notifier before the console exists, so the
	// sink resolves the console lazily.
	var console *chat.Console
	consoleSink := notify.Func(func(n notify.Notification) error {
		if console == nil {
			return nil
		}
		return console.Notifier().Send(n)
	})
	notifier := notify.NewMultiNotifier(consoleSink, notify.LogNotifier{})

	orch, err := buildOrchestrator(cfg, codes, hist, notifier)
	if err != nil {
		return err
	}

	console, err = chat.NewConsole(orch, hist)
	if err != nil {
		return err
	}
	defer console.Close()

	if cfg.Schedule != "" {
		sched, err := scheduler.New(cfg.Schedule, scheduleTrigger(ctx, orch, notifier))
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		_ = notifier.Send(notify.Infof("Scheduled runs enabled (%s), next at %s.",
			cfg.Schedule, sched.Next().Format("2006-01-02 15:04")))
	}

	return console.Run(ctx)
}

// scheduleTrigger returns the cron callback. It dispatches the run in the
// background, exactly like the console's run command, so stopping the
// scheduler never waits on an in-flight run.
func scheduleTrigger(ctx context.Context, orch *run.Orchestrator, notifier notify.Notifier) func() {
	return func() {
		go func() {
			if err := orch.Execute(ctx, "schedule"); errors.Is(err, run.ErrRunActive) {
				_ = notifier.Send(notify.Warningf("Scheduled check skipped: a run is already active."))
			}
		}()
	}
}
