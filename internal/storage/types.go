package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config selects a driver.
//
//   - "none" or "": no journal
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// UpdateRecord is one stored submission.
type UpdateRecord struct {
	ID          string    `json:"id"`
	DateKey     string    `json:"date"`
	UserID      string    `json:"user"`
	SubmittedAt time.Time `json:"at"`
	Yesterday   string    `json:"yesterday"`
	Today       string    `json:"today"`
	Blockers    string    `json:"blockers"`
}

// ThreadRecord maps a date to its thread root.
type ThreadRecord struct {
	DateKey   string    `json:"date"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"at"`
}

// Snapshot is the replayed journal. Updates keep insertion order.
type Snapshot struct {
	Updates []UpdateRecord
	Threads []ThreadRecord
}

// Store is the journal API.
type Store interface {
	AppendUpdate(ctx context.Context, r UpdateRecord) error
	// PutThread records the first handle for a date; later calls for the
	// same date are ignored.
	PutThread(ctx context.Context, r ThreadRecord) error
	// Load returns records with DateKey >= since ("" loads everything).
	Load(ctx context.Context, since string) (Snapshot, error)
	Close() error
}
