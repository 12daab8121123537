package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/keysweep/internal/cli"
)

func main() {
	// SIGTERM from the manager cancels the scan; the worker reports where it stopped.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.RunWorker(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
