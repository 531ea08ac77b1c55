// Package badgerstore keeps the notification ledger and the history log in a
// badger key-value store.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"medreminder/dbtypes"

	"github.com/dgraph-io/badger"
	"golang.org/x/xerrors"
)

// Key prefixes that denote different tables in the key-value store.
const (
	ledgerPrefix     = "ledger/"
	historyPrefix    = "history/"
	historySeqKey    = "seq/history"
	historySeqLeases = 16
)

// DB wraps an open badger database.
type DB struct {
	db         *badger.DB
	historySeq *badger.Sequence
}

// Open opens (or creates) the badger database in dir.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(slogLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("while opening badger database in %s: %w", dir, err)
	}

	seq, err := db.GetSequence([]byte(historySeqKey), historySeqLeases)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("while opening history sequence: %w", err)
	}

	return &DB{db: db, historySeq: seq}, nil
}

// Close releases the history sequence lease and closes the database.
func (d *DB) Close() error {
	if err := d.historySeq.Release(); err != nil {
		d.db.Close()
		return fmt.Errorf("while releasing history sequence: %w", err)
	}
	return d.db.Close()
}

// Ledger returns the ledger table.  Entries expire once retention has passed
// since they were recorded; a non-positive retention keeps them forever.
func (d *DB) Ledger(retention time.Duration) *Ledger {
	return &Ledger{db: d.db, retention: retention}
}

func (d *DB) History() *History {
	return &History{db: d.db, seq: d.historySeq}
}

// Ledger is a ledger.Store backed by badger.
type Ledger struct {
	db        *badger.DB
	retention time.Duration
}

func (l *Ledger) Load(ctx context.Context) (map[string]dbtypes.LedgerEntry, error) {
	entries := map[string]dbtypes.LedgerEntry{}
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(ledgerPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(ledgerPrefix):])

			val, err := item.ValueCopy(nil)
			if err != nil {
				return xerrors.Errorf("while reading ledger entry %q: %w", key, err)
			}

			entry := dbtypes.LedgerEntry{}
			if err := json.Unmarshal(val, &entry); err != nil {
				return xerrors.Errorf("while unmarshaling ledger entry %q: %w", key, err)
			}
			entries[key] = entry
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("while loading ledger: %w", err)
	}
	return entries, nil
}

// Save makes the ledger table match entries in a single transaction.
func (l *Ledger) Save(ctx context.Context, entries map[string]dbtypes.LedgerEntry) error {
	now := time.Now()
	err := l.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(ledgerPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := entries[string(key[len(ledgerPrefix):])]; !ok {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return xerrors.Errorf("while deleting stale ledger entry: %w", err)
			}
		}

		for k, e := range entries {
			val, err := json.Marshal(&e)
			if err != nil {
				return xerrors.Errorf("while marshaling ledger entry %q: %w", k, err)
			}

			entry := badger.NewEntry([]byte(ledgerPrefix+k), val)
			if l.retention > 0 {
				ttl := e.At.Add(l.retention).Sub(now)
				if ttl <= 0 {
					continue
				}
				entry = entry.WithTTL(ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return xerrors.Errorf("while writing ledger entry %q: %w", k, err)
			}
		}
		return nil
	})
	if xerrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("concurrent ledger write: %w", err)
	}
	if err != nil {
		return fmt.Errorf("while saving ledger: %w", err)
	}
	return nil
}

// History is an append-only history log backed by badger.  Keys are the
// big-endian value of a badger sequence, so iteration order is append order.
type History struct {
	db  *badger.DB
	seq *badger.Sequence
}

func historyKey(n uint64) []byte {
	key := make([]byte, len(historyPrefix)+8)
	copy(key, historyPrefix)
	binary.BigEndian.PutUint64(key[len(historyPrefix):], n)
	return key
}

func (h *History) Append(ctx context.Context, entry *dbtypes.HistoryEntry) error {
	n, err := h.seq.Next()
	if err != nil {
		return fmt.Errorf("while allocating history key: %w", err)
	}

	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("while marshaling history entry: %w", err)
	}

	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(n), val)
	})
	if err != nil {
		return fmt.Errorf("while writing history entry: %w", err)
	}
	return nil
}

func (h *History) List(ctx context.Context) ([]*dbtypes.HistoryEntry, error) {
	var entries []*dbtypes.HistoryEntry
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return xerrors.Errorf("while reading history entry: %w", err)
			}
			entry := &dbtypes.HistoryEntry{}
			if err := json.Unmarshal(val, entry); err != nil {
				return xerrors.Errorf("while unmarshaling history entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("while listing history: %w", err)
	}
	return entries, nil
}

// slogLogger routes badger's internal logging to slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error("badger: " + fmt.Sprintf(format, args...))
}

func (slogLogger) Warningf(format string, args ...interface{}) {
	slog.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (slogLogger) Infof(format string, args ...interface{}) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (slogLogger) Debugf(format string, args ...interface{}) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}
