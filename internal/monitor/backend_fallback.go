//go:build !linux && !windows

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/repowatchapp/repowatch-server/internal/errors"
)

const fsnotifyKind = "fsnotify"

// fsnotifyBackend is the per-directory fallback for platforms without a
// native implementation. It reuses the same watch-set reconciliation as the
// inotify backend, with fsnotify supplying the platform mechanism.
type fsnotifyBackend struct {
	logger    *slog.Logger
	watchDirs func(context.Context) (map[string]struct{}, error)
	notify    func()
	filter    *metadataFilter

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watches *watchSet
	closed  bool

	stop chan struct{}
	done chan struct{}
}

func newPlatformBackend(deps Deps) (Backend, error) {
	return &fsnotifyBackend{
		logger:    deps.Logger,
		watchDirs: deps.WatchDirs,
		notify:    deps.Notify,
		filter:    newMetadataFilter(deps.Worktree, deps.GitDir),
		watches:   newWatchSet(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// probePlatform verifies the notification mechanism by opening and closing
// a watcher.
func probePlatform() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify unavailable: %w", err)
	}
	return w.Close()
}

// Start opens the watcher, performs the initial reconciliation pass, and
// launches the run loop. On failure only what was actually acquired is
// released.
func (b *fsnotifyBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	b.watcher = watcher

	if err := b.refreshLocked(); err != nil {
		b.teardownLocked()
		return err
	}

	b.logger.Info("fsnotify enabled", "watches", b.watches.size())
	go b.run()
	return nil
}

// run drains fsnotify's event and error channels, using the coalescing
// timer channel as the wait bound whenever a notification is pending.
func (b *fsnotifyBackend) run() {
	defer close(b.done)

	co := newCoalescer(coalesceDelay)

	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if b.filter.relevantAbs(event.Name) {
				co.mark()
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("watcher error", "error", err)
		case <-co.timerChan():
			co.fire(b.notify)
		case <-b.stop:
			return
		}
	}
}

// Refresh resynchronizes the watch set against the tracked-file list.
func (b *fsnotifyBackend) Refresh() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	return b.refreshLocked()
}

func (b *fsnotifyBackend) refreshLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), watchDirsTimeout)
	defer cancel()

	desired, err := b.watchDirs(ctx)
	if err != nil {
		return fmt.Errorf("list watch directories: %w", err)
	}

	if err := b.watches.reconcile(fsnotifyRegistrar{watcher: b.watcher}, desired); err != nil {
		if apperrors.Is(err, apperrors.ErrWatchLimit) {
			b.logger.Error("watch limit exhausted, disabling filesystem monitoring")
			b.stopLocked()
		}
		return err
	}
	return nil
}

// Stop signals the run loop, joins it, then closes the watcher.
func (b *fsnotifyBackend) Stop() {
	b.mu.Lock()
	b.stopLocked()
	b.mu.Unlock()

	<-b.done

	b.mu.Lock()
	b.teardownLocked()
	b.mu.Unlock()
}

// Stats reports the backend kind and watch count.
func (b *fsnotifyBackend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Kind: fsnotifyKind, Watches: b.watches.size()}
}

func (b *fsnotifyBackend) stopLocked() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
}

func (b *fsnotifyBackend) teardownLocked() {
	if b.closed {
		return
	}
	b.closed = true
	if b.watcher != nil {
		_ = b.watcher.Close()
	}
}

// fsnotifyRegistrar applies watch registrations to an fsnotify watcher,
// classifying failures into the reconciler's taxonomy. fsnotify has no
// watch descriptors, so registration always reports descriptor 0 and
// removal goes by path.
type fsnotifyRegistrar struct {
	watcher *fsnotify.Watcher
}

func (r fsnotifyRegistrar) register(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, errRaceLost
	}

	err = r.watcher.Add(dir)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR):
		return 0, errRaceLost
	case errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ENOSPC):
		return 0, apperrors.ErrWatchLimit.WithCause(err)
	default:
		return 0, err
	}
}

func (r fsnotifyRegistrar) unregister(dir string, _ int) error {
	err := r.watcher.Remove(dir)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fsnotify.ErrNonExistentWatch):
		return errRaceLost
	default:
		return err
	}
}
