// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/sportsdvr/internal/cache"
)

// ScheduledFileName is the scheduled-programs database inside the data directory.
const ScheduledFileName = "scheduled.db"

const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_programs (
		program_id      TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL DEFAULT '',
		timer_id        TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		channel         TEXT NOT NULL DEFAULT '',
		start_unix      INTEGER NOT NULL,
		scheduled_unix  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_start ON scheduled_programs(start_unix, program_id)`,
}

// ScheduledStore is the SQLite cache.ScheduledSet.
type ScheduledStore struct {
	db *sql.DB
}

var _ cache.ScheduledSet = (*ScheduledStore)(nil)

// OpenScheduledStore opens (creating if needed) the scheduled-programs database at path.
func OpenScheduledStore(ctx context.Context, path string) (*ScheduledStore, error) {
	db, err := Open(ctx, path, DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &ScheduledStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ScheduledStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("sqlite: scheduled store schema v%d is newer than supported v%d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}
	return tx.Commit()
}

func (s *ScheduledStore) Has(ctx context.Context, programID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_programs WHERE program_id = ?`, programID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: has %s: %w", programID, err)
	}
	return true, nil
}

func (s *ScheduledStore) Get(ctx context.Context, programID string) (cache.ScheduledEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT program_id, subscription_id, timer_id, title, channel, start_unix, scheduled_unix
		FROM scheduled_programs WHERE program_id = ?`, programID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.ScheduledEntry{}, false, nil
	}
	if err != nil {
		return cache.ScheduledEntry{}, false, fmt.Errorf("sqlite: get %s: %w", programID, err)
	}
	return e, true, nil
}

func (s *ScheduledStore) Put(ctx context.Context, e cache.ScheduledEntry) error {
	if e.ProgramID == "" {
		return cache.ErrEmptyProgramID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_programs
		(program_id, subscription_id, timer_id, title, channel, start_unix, scheduled_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(program_id) DO UPDATE SET
			subscription_id = excluded.subscription_id,
			timer_id = excluded.timer_id,
			title = excluded.title,
			channel = excluded.channel,
			start_unix = excluded.start_unix,
			scheduled_unix = excluded.scheduled_unix`,
		e.ProgramID, e.SubscriptionID, e.TimerID, e.Title, e.Channel, e.Start.Unix(), e.ScheduledAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", e.ProgramID, err)
	}
	return nil
}

func (s *ScheduledStore) Delete(ctx context.Context, programID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_programs WHERE program_id = ?`, programID); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", programID, err)
	}
	return nil
}

func (s *ScheduledStore) List(ctx context.Context) ([]cache.ScheduledEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT program_id, subscription_id, timer_id, title, channel, start_unix, scheduled_unix
		FROM scheduled_programs ORDER BY start_unix, program_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []cache.ScheduledEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ScheduledStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_programs`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *ScheduledStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_programs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *ScheduledStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (cache.ScheduledEntry, error) {
	var (
		e                  cache.ScheduledEntry
		startUnix, schUnix int64
	)
	if err := row.Scan(&e.ProgramID, &e.SubscriptionID, &e.TimerID, &e.Title, &e.Channel, &startUnix, &schUnix); err != nil {
		return cache.ScheduledEntry{}, err
	}
	e.Start = time.Unix(startUnix, 0).UTC()
	e.ScheduledAt = time.Unix(schUnix, 0).UTC()
	return e, nil
}
