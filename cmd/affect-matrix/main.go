package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcliao/affect-matrix/internal/cli"
	"github.com/rcliao/affect-matrix/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.RootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
