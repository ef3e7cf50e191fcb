// Package main is the entry point for the resdb command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/resdb/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	// Commands that reported through the formatter return an *ExitError;
	// anything else (flag errors, unknown commands) is printed here.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err == nil {
		fmt.Fprintf(os.Stderr, "resdb: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
