package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/repowatchapp/repowatch-server/internal/config"
	apperrors "github.com/repowatchapp/repowatch-server/internal/errors"
	"github.com/repowatchapp/repowatch-server/internal/git"
	"github.com/repowatchapp/repowatch-server/internal/logger"
	"github.com/repowatchapp/repowatch-server/internal/monitor"
	"github.com/repowatchapp/repowatch-server/internal/sse"
)

// MonitorHandle wraps the filesystem monitor with lifecycle management.
type MonitorHandle struct {
	*monitor.Monitor
	subID string
}

// Shutdown implements do.Shutdownable.
func (h *MonitorHandle) Shutdown() error {
	if h.subID != "" {
		h.Detach(h.subID)
	}
	err := h.Stop()
	if err != nil && apperrors.Is(err, apperrors.ErrNotStarted) {
		// Nothing was running; monitoring unavailable or already stopped.
		return nil
	}
	return err
}

// ProvideMonitor provides the filesystem change monitor, started and wired
// to the journal and SSE fan-out: every coalesced notification is recorded
// and broadcast to connected clients.
func ProvideMonitor(i do.Injector) (*MonitorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	repo := do.MustInvoke[*git.Repo](i)
	journalHandle := do.MustInvoke[*JournalHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	mon := monitor.New(repo, cfg.Monitor.Enabled, log.Logger)

	subID := mon.Attach(func() {
		entry, err := journalHandle.Append(time.Now())
		if err != nil {
			log.Warn("failed to record change notification", "error", err)
			sseHandle.Emit(sse.NewFilesChangedEvent(nil))
			return
		}
		sseHandle.Emit(sse.NewFilesChangedEvent(entry))
	})

	if mon.Available() {
		if err := mon.Start(); err != nil {
			// Degrade rather than fail startup; the API still serves
			// status, journal history, and manual refresh attempts.
			log.Error("failed to start filesystem monitoring", "error", err)
		}
	}

	return &MonitorHandle{Monitor: mon, subID: subID}, nil
}
