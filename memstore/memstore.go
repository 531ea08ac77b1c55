// Package memstore holds in-memory implementations of the medication,
// settings, history and ledger stores.  They back tests and dry runs.
package memstore

import (
	"context"
	"errors"
	"sync"

	"medreminder/dbtypes"
)

// ErrInjected is returned by stores that have been told to fail.
var ErrInjected = errors.New("injected store failure")

type Medications struct {
	mu   sync.RWMutex
	meds []*dbtypes.Medication

	// LoadErr, if set, is returned from LoadAll along with the stored
	// medications.
	LoadErr error
	// SaveErr, if set, is returned from SaveAll without saving.
	SaveErr error
}

func NewMedications(meds ...*dbtypes.Medication) *Medications {
	return &Medications{meds: cloneMeds(meds)}
}

func (s *Medications) LoadAll(ctx context.Context) ([]*dbtypes.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMeds(s.meds), s.LoadErr
}

func (s *Medications) SaveAll(ctx context.Context, meds []*dbtypes.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.meds = cloneMeds(meds)
	return nil
}

func cloneMeds(in []*dbtypes.Medication) []*dbtypes.Medication {
	out := make([]*dbtypes.Medication, 0, len(in))
	for _, m := range in {
		c := *m
		c.ReminderTimes = append([]string(nil), m.ReminderTimes...)
		if m.LowStockThreshold != nil {
			v := *m.LowStockThreshold
			c.LowStockThreshold = &v
		}
		out = append(out, &c)
	}
	return out
}

type Settings struct {
	mu       sync.Mutex
	settings dbtypes.Settings
	Err      error
}

func NewSettings(settings *dbtypes.Settings) *Settings {
	return &Settings{settings: *settings}
}

func (s *Settings) Get(ctx context.Context) (*dbtypes.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := s.settings
	return &out, nil
}

func (s *Settings) Set(settings *dbtypes.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = *settings
}

type History struct {
	mu      sync.Mutex
	entries []*dbtypes.HistoryEntry
	Err     error
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(ctx context.Context, entry *dbtypes.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	c := *entry
	h.entries = append(h.entries, &c)
	return nil
}

func (h *History) List(ctx context.Context) ([]*dbtypes.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*dbtypes.HistoryEntry, 0, len(h.entries))
	for _, e := range h.entries {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// Ledger is an in-memory ledger store.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]dbtypes.LedgerEntry
	saves   int

	LoadErr error
	SaveErr error
}

func NewLedger() *Ledger {
	return &Ledger{entries: map[string]dbtypes.LedgerEntry{}}
}

func (l *Ledger) Load(ctx context.Context) (map[string]dbtypes.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LoadErr != nil {
		return nil, l.LoadErr
	}
	out := make(map[string]dbtypes.LedgerEntry, len(l.entries))
	for k, e := range l.entries {
		out[k] = e
	}
	return out, nil
}

func (l *Ledger) Save(ctx context.Context, entries map[string]dbtypes.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SaveErr != nil {
		return l.SaveErr
	}
	l.entries = make(map[string]dbtypes.LedgerEntry, len(entries))
	for k, e := range entries {
		l.entries[k] = e
	}
	l.saves++
	return nil
}

// Saves returns how many successful saves the store has seen.
func (l *Ledger) Saves() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saves
}
