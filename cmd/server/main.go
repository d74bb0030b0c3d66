// Package main provides the entry point for the repowatch server application.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/repowatchapp/repowatch-server/internal/di"
	"github.com/repowatchapp/repowatch-server/internal/di/providers"
	"github.com/repowatchapp/repowatch-server/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// Shutdown all services in reverse order
	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	// The journal uses a wrapper type, so close it explicitly in case the
	// container missed it.
	if journalHandle, err := do.Invoke[*providers.JournalHandle](injector); err == nil {
		if err := journalHandle.Shutdown(); err != nil {
			log.Error("Failed to close journal", "error", err)
		}
	}

	log.Info("Goodbye")
}
