//go:build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	apperrors "github.com/repowatchapp/repowatch-server/internal/errors"
)

const inotifyKind = "inotify"

// Watch registration mask: the trigger set plus flags that reject anything
// that stopped being a directory before the syscall landed.
const (
	triggerMask = unix.IN_ATTRIB | unix.IN_CLOSE_WRITE | unix.IN_CREATE |
		unix.IN_DELETE | unix.IN_MODIFY | unix.IN_MOVED_FROM | unix.IN_MOVED_TO
	addMask = triggerMask | unix.IN_ONLYDIR
)

// inotifyBackend watches one directory per tracked-file parent, multiplexing
// the inotify fd with a private wake pipe used for shutdown.
type inotifyBackend struct {
	logger    *slog.Logger
	watchDirs func(context.Context) (map[string]struct{}, error)
	notify    func()

	// mu guards the handles and watch set shared by setup, refresh, and
	// teardown. The run loop itself only reads the fds, which stay valid
	// until teardown runs after the join.
	mu      sync.Mutex
	fd      int
	wakeR   int
	wakeW   int
	watches *watchSet
	closed  bool

	stopped atomic.Bool
	done    chan struct{}
}

func newPlatformBackend(deps Deps) (Backend, error) {
	return &inotifyBackend{
		logger:    deps.Logger,
		watchDirs: deps.WatchDirs,
		notify:    deps.Notify,
		fd:        -1,
		wakeR:     -1,
		wakeW:     -1,
		watches:   newWatchSet(),
		done:      make(chan struct{}),
	}, nil
}

// probePlatform verifies inotify is usable by opening and closing an
// instance.
func probePlatform() error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("inotify unavailable: %w", err)
	}
	return unix.Close(fd)
}

// Start opens the inotify instance and wake pipe, performs the initial
// reconciliation pass, and launches the run loop. On any failure only the
// resources actually acquired are released.
func (b *inotifyBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("inotify_init: %w", err)
	}
	b.fd = fd

	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		b.teardownLocked()
		return fmt.Errorf("wake pipe: %w", err)
	}
	b.wakeR, b.wakeW = pipeFds[0], pipeFds[1]

	if err := b.refreshLocked(); err != nil {
		b.teardownLocked()
		return err
	}

	b.logger.Info("inotify enabled", "watches", b.watches.size())
	go b.run()
	return nil
}

// run is the backend's event loop: block on {inotify fd, wake pipe} with
// the coalescing delay as the bound whenever a notification is pending.
func (b *inotifyBackend) run() {
	defer close(b.done)

	co := newCoalescer(coalesceDelay)
	buf := make([]byte, unix.SizeofInotifyEvent*256)

	for {
		fds := []unix.PollFd{
			{Fd: int32(b.fd), Events: unix.POLLIN},
			{Fd: int32(b.wakeR), Events: unix.POLLIN},
		}

		n, err := unix.Poll(fds, co.pollTimeout())
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			b.logger.Error("inotify poll failed, monitoring stopped", "error", err)
			return
		}

		if n == 0 {
			co.fire(b.notify)
			continue
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			b.drainWake()
			if b.stopped.Load() {
				return
			}
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			nr, err := unix.Read(b.fd, buf)
			switch {
			case err == nil:
				if relevantInotifyBatch(buf[:nr]) {
					co.mark()
				}
			case errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN):
				// Spurious wakeup, wait again.
			default:
				b.logger.Error("inotify read failed, monitoring stopped", "error", err)
				return
			}
		}
	}
}

// relevantInotifyBatch reports whether any event in a raw inotify batch
// intersects the trigger set. Queue overflow counts as relevant: a burst
// large enough to overflow the kernel queue certainly changed something.
func relevantInotifyBatch(buf []byte) bool {
	relevant := false
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: syscall buffer layout, same as the kernel wrote it
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(event.Len)

		if event.Mask&(triggerMask|unix.IN_Q_OVERFLOW) != 0 {
			relevant = true
		}
	}
	return relevant
}

// Refresh resynchronizes the watch set against the tracked-file list.
func (b *inotifyBackend) Refresh() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.stopped.Load() {
		return nil
	}
	return b.refreshLocked()
}

func (b *inotifyBackend) refreshLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), watchDirsTimeout)
	defer cancel()

	desired, err := b.watchDirs(ctx)
	if err != nil {
		return fmt.Errorf("list watch directories: %w", err)
	}

	if err := b.watches.reconcile(inotifyRegistrar{fd: b.fd}, desired); err != nil {
		if apperrors.Is(err, apperrors.ErrWatchLimit) {
			b.logWatchLimitHint()
			// A half-populated watch set cannot be trusted; shut the
			// run loop down. The controller joins and releases us.
			b.stopped.Store(true)
			b.wakeLocked()
		}
		return err
	}
	return nil
}

func (b *inotifyBackend) logWatchLimitHint() {
	b.logger.Error("inotify watch limit exhausted, disabling filesystem monitoring")
	b.logger.Error("increase the limit with: " +
		"echo fs.inotify.max_user_watches=100000 | sudo tee -a /etc/sysctl.conf && sudo sysctl -p")
}

// Stop signals the run loop via the wake pipe, joins it, then releases the
// inotify fd and both pipe ends.
func (b *inotifyBackend) Stop() {
	b.stopped.Store(true)
	b.wake()
	<-b.done

	b.mu.Lock()
	b.teardownLocked()
	b.mu.Unlock()
}

// Stats reports the backend kind and watch count.
func (b *inotifyBackend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Kind: inotifyKind, Watches: b.watches.size()}
}

func (b *inotifyBackend) wake() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wakeLocked()
}

func (b *inotifyBackend) wakeLocked() {
	if b.closed || b.wakeW < 0 {
		return
	}
	_, _ = unix.Write(b.wakeW, []byte{0})
}

func (b *inotifyBackend) drainWake() {
	buf := make([]byte, 16)
	for {
		if _, err := unix.Read(b.wakeR, buf); err != nil {
			return
		}
	}
}

// teardownLocked releases whatever was actually acquired; not-yet-opened
// resources are skipped, so it is safe after partial setup and idempotent.
func (b *inotifyBackend) teardownLocked() {
	if b.closed {
		return
	}
	b.closed = true
	for _, fd := range []int{b.fd, b.wakeR, b.wakeW} {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
	}
	b.fd, b.wakeR, b.wakeW = -1, -1, -1
}

// inotifyRegistrar applies watch registrations to an inotify instance,
// classifying errno into the reconciler's taxonomy.
type inotifyRegistrar struct {
	fd int
}

func (r inotifyRegistrar) register(dir string) (int, error) {
	wd, err := unix.InotifyAddWatch(r.fd, dir, addMask)
	switch {
	case err == nil:
		return wd, nil
	case errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR):
		return 0, errRaceLost
	case errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENOMEM):
		return 0, apperrors.ErrWatchLimit.WithCause(err)
	default:
		return 0, err
	}
}

func (r inotifyRegistrar) unregister(dir string, wd int) error {
	//nolint:gosec // G115: wd is a small non-negative int from inotify_add_watch
	_, err := unix.InotifyRmWatch(r.fd, uint32(wd))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT):
		// The kernel already dropped the watch (directory deleted).
		return errRaceLost
	default:
		return err
	}
}
