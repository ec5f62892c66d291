// Package chat is the command surface that drives the automation: a
// readline console dispatching text commands to the run orchestrator and
// routing bare numeric messages to a login that is waiting for its
// verification code. Progress from an in-flight run prints above the prompt
// so the console stays responsive throughout, including while a login is
// suspended on the second factor.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/history"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/run"
)

const banner = `Production Monitor

Commands:
  run      - start a production check
  status   - show whether a check is running
  history  - show recent runs
  help     - show this message
  exit     - quit

When a verification code is required, just type the code.`

// Console is the interactive command loop. It is bound to the single local
// user, the equivalent of the one authorized identity on a remote chat
// surface.
type Console struct {
	rl      *readline.Instance
	orch    *run.Orchestrator
	history *history.DB
	mu      sync.Mutex
}

// NewConsole creates the console. history may be nil.
func NewConsole(orch *run.Orchestrator, hist *history.DB) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("chat: init terminal input: %w", err)
	}
	return &Console{rl: rl, orch: orch, history: hist}, nil
}

// Close releases the terminal.
func (c *Console) Close() {
	_ = c.rl.Close()
}

// Notifier returns a notifier that prints above the prompt, for wiring into
// the orchestrator.
func (c *Console) Notifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) error {
		c.printAbove(n.Message)
		return nil
	})
}

// printAbove writes a line above the current prompt without breaking input.
func (c *Console) printAbove(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}

// Run processes commands until exit, EOF, or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.printAbove(banner)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := c.rl.Readline()
		if err != nil {
			// Interrupt or EOF ends the console.
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit":
			return nil
		case "help", "start":
			c.printAbove(banner)
		case "run":
			c.startRun(ctx)
		case "status":
			c.printStatus()
		case "history":
			c.printHistory()
		default:
			c.handleMessage(input)
		}
	}
}

// startRun launches a run in the background so the console keeps servicing
// input, in particular the verification code the run may come to need.
func (c *Console) startRun(ctx context.Context) {
	if _, active := c.orch.Active(); active {
		c.printAbove("A check is already running!")
		return
	}
	c.printAbove("Starting production check...")
	go func() {
		if err := c.orch.Execute(ctx, "console"); errors.Is(err, run.ErrRunActive) {
			c.printAbove("A check is already running!")
		}
		// Other failures were already reported through the notifier.
	}()
}

func (c *Console) printStatus() {
	if active, ok := c.orch.Active(); ok {
		c.printAbove(fmt.Sprintf("Run %s is active (%s).", shortID(active.ID), active.Stage))
		return
	}
	c.printAbove("Idle.")
}

func (c *Console) printHistory() {
	if c.history == nil {
		c.printAbove("Run history is not enabled.")
		return
	}
	records, err := c.history.Recent(10)
	if err != nil {
		c.printAbove(fmt.Sprintf("Could not read history: %v", err))
		return
	}
	if len(records) == 0 {
		c.printAbove("No runs recorded yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Recent runs:\n")
	for _, rec := range records {
		line := fmt.Sprintf("  %s  %s  %s  %d categories, %d items",
			rec.StartedAt.Format("2006-01-02 15:04"), shortID(rec.ID), rec.Status,
			rec.CategoriesWalked, rec.ItemsChecked)
		if rec.Failure != "" {
			line += "  (" + rec.Failure + ")"
		}
		b.WriteString(line + "\n")
	}
	c.printAbove(strings.TrimRight(b.String(), "\n"))
}

// handleMessage treats free text as a verification code when a login is
// waiting for one. A malformed code gets a format complaint and leaves the
// pending request untouched.
func (c *Console) handleMessage(input string) {
	if !c.orch.CodePending() {
		c.printAbove("Unknown command. Type 'help' for the command list.")
		return
	}

	switch err := c.orch.DeliverCode(input); {
	case err == nil:
		c.printAbove("Code received! Continuing...")
	case errors.Is(err, twofactor.ErrInvalidCode):
		c.printAbove("That doesn't look like a valid code. Please send just the numbers (4-8 digits).")
	case errors.Is(err, twofactor.ErrNoPending):
		c.printAbove("No verification is pending right now.")
	default:
		c.printAbove(fmt.Sprintf("Could not accept code: %v", err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
