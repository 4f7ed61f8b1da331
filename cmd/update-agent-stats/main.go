package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if err := models.UpdateAgentCachedStats(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stats update failed: %v\n", err)
		os.Exit(1)
	}

	if err := models.RefreshAllAgentMatviews(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "matview refresh failed: %v\n", err)
		os.Exit(1)
	}
}
