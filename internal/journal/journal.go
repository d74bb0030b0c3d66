// Package journal persists a record of coalesced change notifications so
// clients can ask "what happened recently" across restarts.
package journal

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/repowatchapp/repowatch-server/internal/id"
)

const keyPrefix = "change:"

// Entry is one recorded change notification.
type Entry struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// Journal wraps a Badger database holding change entries keyed by
// zero-padded nanosecond timestamp, so lexicographic key order is
// chronological order.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("journal opened", "path", path)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (j *Journal) Close() error {
	if j.logger != nil {
		j.logger.Info("closing journal")
	}
	return j.db.Close()
}

// Append records a change notification at the given time and returns the
// stored entry.
func (j *Journal) Append(at time.Time) (Entry, error) {
	entry := Entry{
		ID: id.MustGenerate("chg"),
		At: at,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := fmt.Appendf(nil, "%s%020d:%s", keyPrefix, at.UnixNano(), entry.ID)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to append entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, limit)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last possible key of the prefix.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return entries, nil
}

// Count returns the total number of recorded entries.
func (j *Journal) Count() (int, error) {
	count := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
