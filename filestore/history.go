package filestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"medreminder/dbtypes"
)

var historyHeader = []string{"time", "medication_id", "medication", "action", "detail"}

// History is an append-only CSV history log.
type History struct {
	path string
}

// Append adds one entry to the end of the log.
func (h *History) Append(ctx context.Context, entry *dbtypes.HistoryEntry) error {
	f, err := os.OpenFile(h.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("while opening %s: %w", h.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("while checking %s: %w", h.path, err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(historyHeader); err != nil {
			return fmt.Errorf("while writing history header: %w", err)
		}
	}
	row := []string{
		entry.Time.Format(time.RFC3339),
		entry.MedicationID,
		entry.MedicationName,
		string(entry.Action),
		entry.Detail,
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("while writing history entry: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("while flushing history entry: %w", err)
	}

	return f.Close()
}

// List reads the whole log, oldest first.
func (h *History) List(ctx context.Context) ([]*dbtypes.HistoryEntry, error) {
	f, err := os.Open(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %w", h.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(historyHeader)

	if _, err := cr.Read(); err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("while reading history header: %w", err)
	}

	var entries []*dbtypes.HistoryEntry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while reading history: %w", err)
		}

		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("while parsing history timestamp %q: %w", row[0], err)
		}
		entries = append(entries, &dbtypes.HistoryEntry{
			Time:           ts,
			MedicationID:   row[1],
			MedicationName: row[2],
			Action:         dbtypes.Action(row[3]),
			Detail:         row[4],
		})
	}

	return entries, nil
}
