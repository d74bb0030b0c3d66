// Package monitor watches a git working tree for filesystem changes and
// raises a single coalesced "files changed" notification per burst.
//
// A Monitor selects one platform backend at construction time: inotify with
// one watch per tracked-file parent directory on Linux, a single recursive
// ReadDirectoryChangesW handle on Windows, and an fsnotify-based
// per-directory fallback elsewhere. When the platform capability is
// unavailable or monitoring is disabled by configuration, every operation
// degrades to a no-op and the rest of the application behaves identically.
package monitor

import (
	"log/slog"
	"runtime"
	"sync"

	apperrors "github.com/repowatchapp/repowatch-server/internal/errors"
	"github.com/repowatchapp/repowatch-server/internal/git"
	"github.com/repowatchapp/repowatch-server/internal/id"
)

// Monitor is the facade the rest of the application talks to. It owns at
// most one live backend and broadcasts its coalesced notifications to
// attached observers.
type Monitor struct {
	mu      sync.Mutex
	factory func(Deps) (Backend, error)
	backend Backend
	deps    Deps

	obsMu     sync.RWMutex
	observers map[string]func()

	available bool
	logger    *slog.Logger
}

// New creates a Monitor for the given repository. Backend availability is
// probed once, here: if monitoring is disabled by configuration or the
// platform capability is missing, the Monitor is constructed without a
// backend and Start/Stop/Refresh become safe no-ops.
func New(repo *git.Repo, enabled bool, logger *slog.Logger) *Monitor {
	m := &Monitor{
		observers: make(map[string]func()),
		logger:    logger,
	}

	if !enabled {
		logger.Info("filesystem monitoring disabled by configuration")
		return m
	}
	if err := probePlatform(); err != nil {
		logger.Info("filesystem monitoring unavailable",
			"platform", runtime.GOOS, "error", err)
		return m
	}

	m.available = true
	m.factory = newPlatformBackend
	m.deps = Deps{
		Worktree:  repo.Worktree(),
		GitDir:    repo.GitDir(),
		WatchDirs: repo.WatchDirs,
		Notify:    m.notifyObservers,
		Logger:    logger,
	}
	return m
}

// Available reports whether a backend was selected at construction.
func (m *Monitor) Available() bool {
	return m.available
}

// Start constructs and launches the selected backend. A no-op when
// monitoring is unavailable. Returns errors.ErrAlreadyStarted if a backend
// is already running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available {
		return nil
	}
	if m.backend != nil {
		return apperrors.AlreadyStarted("monitor already started")
	}

	backend, err := m.factory(m.deps)
	if err != nil {
		m.logger.Error("failed to create monitor backend", "error", err)
		return err
	}
	if err := backend.Start(); err != nil {
		m.logger.Error("failed to start monitor backend", "error", err)
		return err
	}
	m.backend = backend
	return nil
}

// Stop signals the backend to terminate, waits for full termination, and
// releases the backend reference. Bounded even when the run loop is blocked
// in its event wait, or already dead. A no-op when monitoring is
// unavailable; errors.ErrNotStarted if no backend is running.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	backend := m.backend
	m.backend = nil
	m.mu.Unlock()

	if !m.available {
		return nil
	}
	if backend == nil {
		return apperrors.NotStarted("monitor not started")
	}
	backend.Stop()
	return nil
}

// Refresh forwards a watch-set resync request to the active backend, if
// any. Call after operations that change the tracked-file list (checkout,
// add, rm). If the platform watch limit is exhausted the whole monitoring
// subsystem shuts down rather than continuing half-watched.
func (m *Monitor) Refresh() error {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	if backend == nil {
		return nil
	}

	err := backend.Refresh()
	if err != nil && apperrors.Is(err, apperrors.ErrWatchLimit) {
		m.logger.Warn("watch limit exhausted, disabling filesystem monitoring")
		_ = m.Stop()
	}
	return err
}

// Attach registers an observer for coalesced "files changed" notifications
// and returns its subscription ID. Each observer is invoked exactly once
// per notification; order across observers is unspecified.
func (m *Monitor) Attach(fn func()) string {
	subID := id.MustGenerate("sub")
	m.obsMu.Lock()
	m.observers[subID] = fn
	m.obsMu.Unlock()
	return subID
}

// Detach removes an observer by subscription ID.
func (m *Monitor) Detach(subID string) {
	m.obsMu.Lock()
	delete(m.observers, subID)
	m.obsMu.Unlock()
}

func (m *Monitor) notifyObservers() {
	m.obsMu.RLock()
	snapshot := make([]func(), 0, len(m.observers))
	for _, fn := range m.observers {
		snapshot = append(snapshot, fn)
	}
	m.obsMu.RUnlock()

	for _, fn := range snapshot {
		fn()
	}
}

// Status describes the monitor for diagnostics.
type Status struct {
	Available bool   `json:"available"`
	Running   bool   `json:"running"`
	Backend   string `json:"backend,omitempty"`
	Watches   int    `json:"watches,omitempty"`
}

// Status reports the current monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	status := Status{Available: m.available}
	if backend != nil {
		stats := backend.Stats()
		status.Running = true
		status.Backend = stats.Kind
		status.Watches = stats.Watches
	}
	return status
}

var (
	defaultOnce    sync.Once
	defaultMonitor *Monitor
)

// Default lazily constructs the process-wide Monitor on first use and
// returns the same instance thereafter; later arguments are ignored. It is
// never torn down explicitly. Tests should construct instances with New.
func Default(repo *git.Repo, enabled bool, logger *slog.Logger) *Monitor {
	defaultOnce.Do(func() {
		defaultMonitor = New(repo, enabled, logger)
	})
	return defaultMonitor
}
