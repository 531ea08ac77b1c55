// Package dblayer packages up the changes people make to their medication
// list.  Every change is also written to the history log.
package dblayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"medreminder/dbtypes"

	"github.com/google/uuid"
)

type MedicationStore interface {
	LoadAll(ctx context.Context) ([]*dbtypes.Medication, error)
	SaveAll(ctx context.Context, meds []*dbtypes.Medication) error
}

type HistoryStore interface {
	Append(ctx context.Context, entry *dbtypes.HistoryEntry) error
}

var (
	ErrNameMustNotBeEmpty      = errors.New("medication name must not be empty")
	ErrInvalidTimesPerDay      = errors.New("times per day must be at least 1")
	ErrNegativeStock           = errors.New("stock must be a finite, non-negative number")
	ErrNegativeUnitCost        = errors.New("unit cost must be a finite, non-negative number")
	ErrEndBeforeStart          = errors.New("end date is before start date")
	ErrMedicationNotFound      = errors.New("no medication by that name or ID")
	ErrMedicationAlreadyExists = errors.New("medication already exists")
	ErrOutOfStock              = errors.New("medication is out of stock")
	ErrInvalidRecordsPresent   = errors.New("medication list has invalid records; fix them before making changes")
)

type DB struct {
	// Serializes read-modify-write cycles on the medication list.
	mu sync.Mutex

	meds    MedicationStore
	history HistoryStore
	now     func() time.Time
}

type DBOpt func(*DB)

func WithClock(now func() time.Time) DBOpt {
	return func(db *DB) {
		db.now = now
	}
}

func New(meds MedicationStore, history HistoryStore, opts ...DBOpt) *DB {
	db := &DB{
		meds:    meds,
		history: history,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// ListMedications returns every valid medication.  Invalid records are
// reported through a dbtypes.RecordErrors error alongside the valid ones.
func (db *DB) ListMedications(ctx context.Context) ([]*dbtypes.Medication, error) {
	return db.meds.LoadAll(ctx)
}

// FindMedication looks a medication up by ID, or failing that by name
// (case-insensitive).
func (db *DB) FindMedication(ctx context.Context, idOrName string) (*dbtypes.Medication, error) {
	meds, err := db.meds.LoadAll(ctx)
	var recErrs dbtypes.RecordErrors
	if err != nil && !errors.As(err, &recErrs) {
		return nil, fmt.Errorf("while loading medications: %w", err)
	}

	i := find(meds, idOrName)
	if i < 0 {
		return nil, ErrMedicationNotFound
	}
	return meds[i], nil
}

func find(meds []*dbtypes.Medication, idOrName string) int {
	for i, med := range meds {
		if med.ID == idOrName {
			return i
		}
	}
	for i, med := range meds {
		if strings.EqualFold(med.Name, idOrName) {
			return i
		}
	}
	return -1
}

// loadForUpdate loads the medication list for modification.  A list with
// invalid records is refused, since saving it back would drop them.
func (db *DB) loadForUpdate(ctx context.Context) ([]*dbtypes.Medication, error) {
	meds, err := db.meds.LoadAll(ctx)
	var recErrs dbtypes.RecordErrors
	if errors.As(err, &recErrs) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecordsPresent, err)
	}
	if err != nil {
		return nil, fmt.Errorf("while loading medications: %w", err)
	}
	return meds, nil
}

// CreateMedication validates med, assigns it an ID, and adds it to the list.
// Reminder times are normalized to HH:MM and deduplicated.
func (db *DB) CreateMedication(ctx context.Context, med *dbtypes.Medication) (*dbtypes.Medication, error) {
	med.Name = strings.TrimSpace(med.Name)
	if med.Name == "" {
		return nil, ErrNameMustNotBeEmpty
	}
	if med.TimesPerDay < 1 {
		return nil, ErrInvalidTimesPerDay
	}
	if med.Stock < 0 || math.IsNaN(med.Stock) || math.IsInf(med.Stock, 0) {
		return nil, ErrNegativeStock
	}
	if med.UnitCost < 0 || math.IsNaN(med.UnitCost) || math.IsInf(med.UnitCost, 0) {
		return nil, ErrNegativeUnitCost
	}
	if med.StartDate.IsValid() && med.EndDate.IsValid() && med.EndDate.Before(med.StartDate) {
		return nil, ErrEndBeforeStart
	}

	times, err := normalizeTimes(med.ReminderTimes)
	if err != nil {
		return nil, err
	}
	med.ReminderTimes = times

	db.mu.Lock()
	defer db.mu.Unlock()

	meds, err := db.loadForUpdate(ctx)
	if err != nil {
		return nil, err
	}

	for _, existing := range meds {
		if strings.EqualFold(existing.Name, med.Name) {
			return nil, ErrMedicationAlreadyExists
		}
	}

	med.ID = uuid.New().String()
	meds = append(meds, med)

	if err := db.meds.SaveAll(ctx, meds); err != nil {
		return nil, fmt.Errorf("while saving medications: %w", err)
	}

	db.appendHistory(ctx, med, dbtypes.ActionAdded, fmt.Sprintf("stock %g, %d per day", med.Stock, med.TimesPerDay))
	return med, nil
}

func normalizeTimes(raw []string) ([]string, error) {
	seen := map[dbtypes.TimeOfDay]bool{}
	out := []string{}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		tod, err := dbtypes.ParseTimeOfDay(r)
		if err != nil {
			return nil, fmt.Errorf("while parsing reminder time %q: %w", r, err)
		}
		if seen[tod] {
			continue
		}
		seen[tod] = true
		out = append(out, tod.String())
	}
	return out, nil
}

// UpdateStock sets the stock level of a medication.
func (db *DB) UpdateStock(ctx context.Context, idOrName string, stock float64) (*dbtypes.Medication, error) {
	if stock < 0 || math.IsNaN(stock) || math.IsInf(stock, 0) {
		return nil, ErrNegativeStock
	}

	return db.modify(ctx, idOrName, func(med *dbtypes.Medication) (dbtypes.Action, string, error) {
		old := med.Stock
		med.Stock = stock
		return dbtypes.ActionStockUpdated, fmt.Sprintf("stock %g -> %g", old, stock), nil
	})
}

// RecordDose marks one dose as taken, decrementing stock by one.
func (db *DB) RecordDose(ctx context.Context, idOrName string) (*dbtypes.Medication, error) {
	return db.modify(ctx, idOrName, func(med *dbtypes.Medication) (dbtypes.Action, string, error) {
		if med.Stock < 1 {
			return "", "", ErrOutOfStock
		}
		med.Stock--
		return dbtypes.ActionTaken, fmt.Sprintf("stock now %g", med.Stock), nil
	})
}

func (db *DB) modify(ctx context.Context, idOrName string, f func(med *dbtypes.Medication) (dbtypes.Action, string, error)) (*dbtypes.Medication, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	meds, err := db.loadForUpdate(ctx)
	if err != nil {
		return nil, err
	}

	i := find(meds, idOrName)
	if i < 0 {
		return nil, ErrMedicationNotFound
	}
	med := meds[i]

	action, detail, err := f(med)
	if err != nil {
		return nil, err
	}

	if err := db.meds.SaveAll(ctx, meds); err != nil {
		return nil, fmt.Errorf("while saving medications: %w", err)
	}

	db.appendHistory(ctx, med, action, detail)
	return med, nil
}

// DeleteMedication removes a medication from the list.
func (db *DB) DeleteMedication(ctx context.Context, idOrName string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	meds, err := db.loadForUpdate(ctx)
	if err != nil {
		return err
	}

	i := find(meds, idOrName)
	if i < 0 {
		return ErrMedicationNotFound
	}
	med := meds[i]
	meds = append(meds[:i], meds[i+1:]...)

	if err := db.meds.SaveAll(ctx, meds); err != nil {
		return fmt.Errorf("while saving medications: %w", err)
	}

	db.appendHistory(ctx, med, dbtypes.ActionDeleted, "")
	return nil
}

// The medication list is already saved by the time history is written, so a
// history failure is logged rather than returned.
func (db *DB) appendHistory(ctx context.Context, med *dbtypes.Medication, action dbtypes.Action, detail string) {
	entry := &dbtypes.HistoryEntry{
		Time:           db.now(),
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Action:         action,
		Detail:         detail,
	}
	if err := db.history.Append(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Error while appending history entry",
			slog.String("action", string(action)),
			slog.String("medication", med.Name),
			slog.Any("err", err))
	}
}
