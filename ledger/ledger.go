// Package ledger tracks which reminder occurrences have already been
// announced, so that repeated evaluation passes notify at most once.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medreminder/dbtypes"
)

// Store is the persisted form of a ledger, loaded and saved as a unit.
type Store interface {
	Load(ctx context.Context) (map[string]dbtypes.LedgerEntry, error)
	Save(ctx context.Context, entries map[string]dbtypes.LedgerEntry) error
}

// Ledger is a set of keys with the time each was first recorded.
//
// A Ledger is not safe for concurrent use; the evaluation loop owns it for the
// duration of one pass.
type Ledger struct {
	entries map[string]dbtypes.LedgerEntry
}

func New() *Ledger {
	return &Ledger{entries: map[string]dbtypes.LedgerEntry{}}
}

// Load reads the ledger from store, discarding entries recorded more than
// retention before now.  A non-positive retention keeps everything.
func Load(ctx context.Context, store Store, now time.Time, retention time.Duration) (*Ledger, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("while loading ledger: %w", err)
	}

	l := New()
	for k, e := range entries {
		l.entries[k] = e
	}

	if retention > 0 {
		l.Prune(now.Add(-retention))
	}

	return l, nil
}

// Persist writes the whole ledger back to store.
func (l *Ledger) Persist(ctx context.Context, store Store) error {
	if err := store.Save(ctx, l.Entries()); err != nil {
		return fmt.Errorf("while saving ledger: %w", err)
	}
	return nil
}

func (l *Ledger) Has(key string) bool {
	_, ok := l.entries[key]
	return ok
}

// Record adds key with status notified if it is not already present.  The
// first recording wins; later calls leave the entry untouched and return
// false.
func (l *Ledger) Record(key string, at time.Time) bool {
	return l.RecordStatus(key, at, dbtypes.StatusNotified)
}

// RecordStatus is Record with an explicit status.
func (l *Ledger) RecordStatus(key string, at time.Time, status string) bool {
	if _, ok := l.entries[key]; ok {
		return false
	}
	l.entries[key] = dbtypes.LedgerEntry{At: at, Status: status}
	return true
}

// Forget removes key.  Used to roll back a recording whose persistence
// failed.
func (l *Ledger) Forget(key string) {
	delete(l.entries, key)
}

// Prune drops entries recorded before cutoff and returns how many were
// dropped.
func (l *Ledger) Prune(cutoff time.Time) int {
	dropped := 0
	for k, e := range l.entries {
		if e.At.Before(cutoff) {
			delete(l.entries, k)
			dropped++
		}
	}
	return dropped
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the ledger contents.
func (l *Ledger) Entries() map[string]dbtypes.LedgerEntry {
	out := make(map[string]dbtypes.LedgerEntry, len(l.entries))
	for k, e := range l.entries {
		out[k] = e
	}
	return out
}

// Keys returns the recorded keys in sorted order.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
