// Package di provides dependency injection configuration for the repowatch server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/repowatchapp/repowatch-server/internal/config"
	"github.com/repowatchapp/repowatch-server/internal/di/providers"
	"github.com/repowatchapp/repowatch-server/internal/git"
	"github.com/repowatchapp/repowatch-server/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Repository and storage
	do.Provide(injector, providers.ProvideRepo)
	do.Provide(injector, providers.ProvideJournal)

	// Event fan-out
	do.Provide(injector, providers.ProvideSSEManager)

	// Filesystem monitoring
	do.Provide(injector, providers.ProvideMonitor)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once everything is running.
// This triggers lazy initialization of the whole dependency graph.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*git.Repo](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.JournalHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.MonitorHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
