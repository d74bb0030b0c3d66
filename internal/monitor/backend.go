package monitor

import (
	"context"
	"log/slog"
	"time"
)

// watchDirsTimeout bounds the tracked-file enumeration performed during a
// watch-set refresh.
const watchDirsTimeout = 30 * time.Second

// Backend encapsulates one running watch session. Implementations own their
// OS resources exclusively and release them all on Stop regardless of how
// the run loop exited.
type Backend interface {
	// Start acquires platform resources, performs any initial watch-set
	// reconciliation, and launches the run loop on its own goroutine. On
	// error nothing is left running and all partially-acquired resources
	// are released.
	Start() error

	// Stop signals the run loop, unblocks its event wait, joins it, and
	// releases all resources. Completes in bounded time even if the loop
	// already died. Safe to call once per Start.
	Stop()

	// Refresh resynchronizes the watch set against the current
	// tracked-file list. A no-op on backends that watch the whole tree
	// with a single handle. Returns errors.ErrWatchLimit (wrapped) when
	// the platform watch limit is exhausted; the backend has already
	// initiated its own shutdown in that case.
	Refresh() error

	// Stats reports the backend kind and current watch count.
	Stats() Stats
}

// Stats describes a running backend.
type Stats struct {
	Kind    string `json:"kind"`
	Watches int    `json:"watches"`
}

// Deps carries everything a backend needs from its surroundings. WatchDirs
// returns the absolute parent directories of all tracked files; Notify is
// the coalesced-notification sink.
type Deps struct {
	Worktree  string
	GitDir    string
	WatchDirs func(context.Context) (map[string]struct{}, error)
	Notify    func()
	Logger    *slog.Logger
}
