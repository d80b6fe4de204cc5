// Package main provides the entry point for the ccengram CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JoeyEamigh/ccengram/cmd/ccengram/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	// spec.md §7: exit code 2 signals "no embedding provider available",
	// distinct from the general-error code 1.
	if strings.Contains(err.Error(), "no configured embedding provider is available") {
		os.Exit(2)
	}
	os.Exit(1)
}
