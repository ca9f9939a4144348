// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package badger provides the Badger scheduled-programs backend.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/sportsdvr/internal/cache"
)

// ScheduledDirName is the Badger directory inside the data directory.
const ScheduledDirName = "scheduled.badger"

const prefix = "sched:"

// ScheduledStore keeps scheduled entries as JSON under "sched:<program id>".
type ScheduledStore struct {
	db *badger.DB
}

var _ cache.ScheduledSet = (*ScheduledStore)(nil)

// OpenScheduledStore opens the store at dir. An empty dir opens an in-memory instance.
func OpenScheduledStore(dir string) (*ScheduledStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &ScheduledStore{db: db}, nil
}

func key(programID string) []byte { return []byte(prefix + programID) }

func (s *ScheduledStore) Has(ctx context.Context, programID string) (bool, error) {
	_, ok, err := s.Get(ctx, programID)
	return ok, err
}

func (s *ScheduledStore) Get(_ context.Context, programID string) (cache.ScheduledEntry, bool, error) {
	var out cache.ScheduledEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(programID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return cache.ScheduledEntry{}, false, nil
	}
	if err != nil {
		return cache.ScheduledEntry{}, false, fmt.Errorf("badger: get %s: %w", programID, err)
	}
	return out, true, nil
}

func (s *ScheduledStore) Put(_ context.Context, e cache.ScheduledEntry) error {
	if e.ProgramID == "" {
		return cache.ErrEmptyProgramID
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e.ProgramID), buf)
	})
}

func (s *ScheduledStore) Delete(_ context.Context, programID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(programID))
	})
}

func (s *ScheduledStore) List(ctx context.Context) ([]cache.ScheduledEntry, error) {
	var out []cache.ScheduledEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix), PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e cache.ScheduledEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list: %w", err)
	}
	cache.SortEntries(out)
	return out, nil
}

func (s *ScheduledStore) keys() ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func (s *ScheduledStore) Clear(_ context.Context) (int, error) {
	keys, err := s.keys()
	if err != nil {
		return 0, fmt.Errorf("badger: clear: %w", err)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("badger: clear: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger: clear: %w", err)
	}
	return len(keys), nil
}

func (s *ScheduledStore) Len(_ context.Context) (int, error) {
	keys, err := s.keys()
	if err != nil {
		return 0, fmt.Errorf("badger: len: %w", err)
	}
	return len(keys), nil
}

func (s *ScheduledStore) Close() error { return s.db.Close() }
