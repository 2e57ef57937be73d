// Package main provides the entrypoint for the carpool command-line client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mockcarpool/carpool/internal/cli"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, Version)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
