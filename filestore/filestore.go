// Package filestore keeps medications, history, the notification ledger and
// settings in flat files under one data directory.
//
// Medications and history are CSV so that they stay editable with a
// spreadsheet.  The ledger is JSON.  Settings are YAML.  Every file that is
// rewritten as a whole is written to a temporary file and renamed into place.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	MedicationsFile = "medications.csv"
	HistoryFile     = "history.csv"
	LedgerFile      = "ledger.json"
	SettingsFile    = "settings.yaml"
)

// Dir is a data directory.
type Dir struct {
	path string
}

// Open returns the data directory at path, creating it if needed.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("while creating data directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) Medications() *Medications {
	return &Medications{path: filepath.Join(d.path, MedicationsFile)}
}

func (d *Dir) History() *History {
	return &History{path: filepath.Join(d.path, HistoryFile)}
}

func (d *Dir) Ledger() *Ledger {
	return &Ledger{path: filepath.Join(d.path, LedgerFile)}
}

func (d *Dir) Settings() *Settings {
	return &Settings{path: filepath.Join(d.path, SettingsFile)}
}

// writeFileAtomic replaces the file at path with data.  Readers see either
// the old contents or the new contents, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("while creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	// No-op after a successful rename.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("while writing temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("while syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("while closing temporary file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("while renaming temporary file into place: %w", err)
	}

	return nil
}
