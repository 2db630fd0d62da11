package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "standupbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AppendUpdate(ctx context.Context, r UpdateRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO standup_updates(id, date_key, user_id, submitted_at, yesterday, today, blockers)
		 VALUES(?,?,?,?,?,?,?)`,
		r.ID, r.DateKey, r.UserID, r.SubmittedAt.Format(time.RFC3339Nano), r.Yesterday, r.Today, r.Blockers,
	)
	return err
}

func (s *sqliteStore) PutThread(ctx context.Context, r ThreadRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO standup_threads(date_key, handle, created_at) VALUES(?,?,?)
		 ON CONFLICT(date_key) DO NOTHING`,
		r.DateKey, r.Handle, r.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Load(ctx context.Context, since string) (Snapshot, error) {
	var snap Snapshot

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date_key, user_id, submitted_at, yesterday, today, blockers
		 FROM standup_updates WHERE date_key >= ? ORDER BY seq`, since)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			r  UpdateRecord
			at string
		)
		if err := rows.Scan(&r.ID, &r.DateKey, &r.UserID, &at, &r.Yesterday, &r.Today, &r.Blockers); err != nil {
			rows.Close()
			return snap, err
		}
		r.SubmittedAt, _ = time.Parse(time.RFC3339Nano, at)
		snap.Updates = append(snap.Updates, r)
	}
	if err := rows.Close(); err != nil {
		return snap, err
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT date_key, handle, created_at FROM standup_threads WHERE date_key >= ? ORDER BY date_key`, since)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r  ThreadRecord
			at string
		)
		if err := rows.Scan(&r.DateKey, &r.Handle, &at); err != nil {
			return snap, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, at)
		snap.Threads = append(snap.Threads, r)
	}
	return snap, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
