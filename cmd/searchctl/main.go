package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/searchandising/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		cancel()
		os.Exit(1)
	}
}
