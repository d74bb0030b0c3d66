package providers

import (
	"github.com/samber/do/v2"

	"github.com/repowatchapp/repowatch-server/internal/config"
	"github.com/repowatchapp/repowatch-server/internal/journal"
	"github.com/repowatchapp/repowatch-server/internal/logger"
)

// JournalHandle wraps the journal with shutdown capability.
type JournalHandle struct {
	*journal.Journal
}

// Shutdown implements do.Shutdownable.
func (h *JournalHandle) Shutdown() error {
	return h.Close()
}

// ProvideJournal provides the notification journal.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	jrnl, err := journal.Open(cfg.Journal.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Journal initialized", "path", cfg.Journal.Path)
	return &JournalHandle{Journal: jrnl}, nil
}
