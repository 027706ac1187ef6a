package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldworks/dispatchd/adapter/cli"
	"github.com/fieldworks/dispatchd/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	cli.SetLogger(logger)

	// A signal at any suspension point unwinds the cycle; a cancelled
	// cycle produces no write.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	cli.Execute(ctx)
}
