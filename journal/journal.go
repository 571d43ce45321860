// Package journal archives terminal queue entries for later inspection.
//
// The journal is write-mostly: the queue saves each entry once it reaches a
// terminal status. Nothing is replayed on startup.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/messaging"
)

var (
	ErrNotFound    = errors.New("journal entry not found")
	ErrSaveFailed  = errors.New("journal save failed")
	ErrLoadFailed  = errors.New("journal load failed")
	ErrUnsupported = errors.New("unsupported journal driver")
)

// Entry is one archived queue entry.
type Entry struct {
	ID         string           `json:"id"`
	Record     messaging.Record `json:"record"`
	Status     string           `json:"status"`
	Attempts   int              `json:"attempts"`
	Route      string           `json:"route,omitempty"`
	Strategy   string           `json:"strategy,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Store persists journal entries. Saving an existing id overwrites it.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	Load(ctx context.Context, id string) (Entry, error)
	// List returns the archived ids in the order they finished.
	List(ctx context.Context) ([]string, error)
	// Delete removes an entry. Missing ids are ignored.
	Delete(ctx context.Context, id string) error
	Close() error
}

// New opens the store selected by cfg. It returns a nil Store and no error
// when the journal is disabled.
func New(cfg config.JournalConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case config.JournalFile:
		return NewFileStore(cfg.Path), nil
	case config.JournalSQLite, config.JournalPostgres, config.JournalMySQL:
		store, err := Open(cfg.Driver, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Driver)
	}
}
