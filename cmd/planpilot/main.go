// Package main is the planpilot entrypoint: a chat-driven automation bot
// that logs into the production planning dashboard, reads completion state,
// and checks off outstanding task items.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/planpilot/pkg/cli"
	"github.com/entrhq/planpilot/pkg/logging"
)

func main() {
	logs := logging.Start("")
	defer logs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
