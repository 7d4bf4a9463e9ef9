// Command velibctl records, loads, replays and charts Velib station snapshots.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

const appName = "velibctl"

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		os.Exit(1)
	}
}
