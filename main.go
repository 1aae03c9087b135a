package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NomadCrew/release-gate/internal/cli"
	"github.com/NomadCrew/release-gate/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// First SIGINT/SIGTERM cancels the pass gracefully (partial results
	// still produce a report); a second signal kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Close() }()

	return cli.Execute(ctx)
}
