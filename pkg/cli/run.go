package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/notify"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one production check and exit",
		Long: `Executes a single automation cycle. If the login requires a verification
code, type it on stdin when prompted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
}

func runOnce(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	codes := twofactor.NewManager(0)
	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	stdout := notify.Func(func(n notify.Notification) error {
		fmt.Println(n.Message)
		return nil
	})
	notifier := notify.NewMultiNotifier(stdout, notify.LogNotifier{})

	orch, err := buildOrchestrator(cfg, codes, hist, notifier)
	if err != nil {
		return err
	}

	// Feed stdin lines to the pending verification request so the login can
	// resume mid-run.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			switch err := orch.DeliverCode(line); {
			case err == nil:
				fmt.Println("Code received! Continuing...")
			case errors.Is(err, twofactor.ErrInvalidCode):
				fmt.Println("That doesn't look like a valid code. Please send just the numbers (4-8 digits).")
			case errors.Is(err, twofactor.ErrNoPending):
				fmt.Println("No verification is pending right now.")
			}
		}
	}()

	return orch.Execute(ctx, "cli")
}
