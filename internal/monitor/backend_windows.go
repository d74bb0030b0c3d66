//go:build windows

package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

const dirChangesKind = "readdirectorychanges"

// notifyFlags requests name, attribute, size, last-write and security
// changes anywhere under the worktree.
const notifyFlags = windows.FILE_NOTIFY_CHANGE_FILE_NAME |
	windows.FILE_NOTIFY_CHANGE_DIR_NAME |
	windows.FILE_NOTIFY_CHANGE_ATTRIBUTES |
	windows.FILE_NOTIFY_CHANGE_SIZE |
	windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
	windows.FILE_NOTIFY_CHANGE_SECURITY

// dirChangesBackend watches the whole worktree with a single recursive
// ReadDirectoryChangesW handle. No reconciliation: the tree is one watch,
// and records under the git metadata directory are filtered out after
// decoding.
type dirChangesBackend struct {
	logger *slog.Logger
	notify func()
	filter *metadataFilter

	worktree string

	// mu guards the handles against teardown racing a late Stop.
	mu        sync.Mutex
	hDir      windows.Handle
	readEvent windows.Handle
	stopEvent windows.Handle
	closed    bool

	done chan struct{}
}

func newPlatformBackend(deps Deps) (Backend, error) {
	return &dirChangesBackend{
		logger:   deps.Logger,
		notify:   deps.Notify,
		filter:   newMetadataFilter(deps.Worktree, deps.GitDir),
		worktree: deps.Worktree,
		hDir:     windows.InvalidHandle,
		done:     make(chan struct{}),
	}, nil
}

// probePlatform always succeeds: ReadDirectoryChangesW is part of the base
// API on every supported Windows version.
func probePlatform() error {
	return nil
}

// Start opens the directory handle and event handles and launches the run
// loop. On failure only what was actually acquired is released.
func (b *dirChangesBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pathPtr, err := windows.UTF16PtrFromString(b.worktree)
	if err != nil {
		return fmt.Errorf("worktree path: %w", err)
	}

	hDir, err := windows.CreateFile(
		pathPtr,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return fmt.Errorf("open worktree handle: %w", err)
	}
	b.hDir = hDir

	readEvent, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		b.teardownLocked()
		return fmt.Errorf("create read event: %w", err)
	}
	b.readEvent = readEvent

	stopEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		b.teardownLocked()
		return fmt.Errorf("create stop event: %w", err)
	}
	b.stopEvent = stopEvent

	b.logger.Info("file notification enabled")
	go b.run()
	return nil
}

// run issues overlapped directory reads and waits on {read done, stop},
// bounding the wait with the coalescing delay whenever a notification is
// pending.
func (b *dirChangesBackend) run() {
	defer close(b.done)

	co := newCoalescer(coalesceDelay)
	buf := make([]byte, 8192)
	readPending := false
	var overlapped windows.Overlapped

	for {
		if !readPending {
			overlapped = windows.Overlapped{HEvent: b.readEvent}
			err := windows.ReadDirectoryChanges(
				b.hDir, &buf[0], uint32(len(buf)), true, notifyFlags, nil, &overlapped, 0)
			if err != nil {
				b.logger.Error("directory read failed, monitoring stopped", "error", err)
				return
			}
			readPending = true
		}

		timeout := uint32(windows.INFINITE)
		if co.active() {
			timeout = uint32(coalesceDelay / time.Millisecond)
		}

		event, err := windows.WaitForMultipleObjects(
			[]windows.Handle{b.readEvent, b.stopEvent}, false, timeout)
		switch {
		case err != nil:
			b.logger.Error("wait failed, monitoring stopped", "error", err)
			return
		case event == windows.WAIT_TIMEOUT:
			co.fire(b.notify)
		case event == windows.WAIT_OBJECT_0:
			var nbytes uint32
			if err := windows.GetOverlappedResult(b.hDir, &overlapped, &nbytes, false); err != nil {
				b.logger.Error("overlapped result failed, monitoring stopped", "error", err)
				return
			}
			readPending = false
			if nbytes > 0 && b.anyRelevant(buf[:nbytes]) {
				co.mark()
			}
		case event == windows.WAIT_OBJECT_0+1:
			// Stop requested.
			return
		}
	}
}

// anyRelevant decodes a change-record batch and reports whether any record
// falls outside the git metadata directory.
func (b *dirChangesBackend) anyRelevant(buf []byte) bool {
	for _, name := range decodeNotifyBatch(buf) {
		if b.filter.relevant(name) {
			return true
		}
	}
	return false
}

// Refresh is a no-op: the whole tree is one recursive watch.
func (b *dirChangesBackend) Refresh() error {
	return nil
}

// Stop signals the run loop, joins it, then cancels the outstanding read
// and closes the directory and event handles, in that order.
func (b *dirChangesBackend) Stop() {
	b.mu.Lock()
	if !b.closed && b.stopEvent != 0 {
		_ = windows.SetEvent(b.stopEvent)
	}
	b.mu.Unlock()

	<-b.done

	b.mu.Lock()
	b.teardownLocked()
	b.mu.Unlock()
}

// Stats reports the backend kind; the whole tree counts as one watch.
func (b *dirChangesBackend) Stats() Stats {
	return Stats{Kind: dirChangesKind, Watches: 1}
}

// teardownLocked cancels outstanding I/O and releases whatever was actually
// acquired; not-yet-opened handles are skipped.
func (b *dirChangesBackend) teardownLocked() {
	if b.closed {
		return
	}
	b.closed = true

	if b.hDir != windows.InvalidHandle {
		_ = windows.CancelIoEx(b.hDir, nil)
		_ = windows.CloseHandle(b.hDir)
		b.hDir = windows.InvalidHandle
	}
	if b.readEvent != 0 {
		_ = windows.CloseHandle(b.readEvent)
		b.readEvent = 0
	}
	if b.stopEvent != 0 {
		_ = windows.CloseHandle(b.stopEvent)
		b.stopEvent = 0
	}
}
