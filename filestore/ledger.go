package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"medreminder/dbtypes"
)

type ledgerFile struct {
	Entries map[string]dbtypes.LedgerEntry `json:"entries"`
}

// Ledger is a JSON-backed notification ledger store.
type Ledger struct {
	path string
}

// Load reads the ledger.  A missing file is an empty ledger.
func (l *Ledger) Load(ctx context.Context) (map[string]dbtypes.LedgerEntry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]dbtypes.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while reading %s: %w", l.path, err)
	}

	lf := &ledgerFile{}
	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("while unmarshaling %s: %w", l.path, err)
	}
	if lf.Entries == nil {
		lf.Entries = map[string]dbtypes.LedgerEntry{}
	}

	return lf.Entries, nil
}

// Save atomically replaces the ledger file.
func (l *Ledger) Save(ctx context.Context, entries map[string]dbtypes.LedgerEntry) error {
	data, err := json.MarshalIndent(&ledgerFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("while marshaling ledger: %w", err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		return fmt.Errorf("while writing %s: %w", l.path, err)
	}
	return nil
}
