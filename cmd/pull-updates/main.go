package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/realitysync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if err := realitysync.RunPullUpdates(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pull updates failed: %v\n", err)
		os.Exit(1)
	}
}
