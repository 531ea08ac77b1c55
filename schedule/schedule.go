// Package schedule turns medications' reminder times into concrete
// occurrences for a given day, and decides which of them are due.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"medreminder/dbtypes"

	"cloud.google.com/go/civil"
)

// Occurrence is one medication reminder time on one calendar date.
type Occurrence struct {
	MedicationID   string
	MedicationName string
	Dosage         string
	Date           civil.Date
	TimeOfDay      dbtypes.TimeOfDay

	// The instant the occurrence is scheduled for.
	At time.Time
}

// Key is the ledger key of the occurrence.
func (o *Occurrence) Key() string {
	return ReminderKey(o.MedicationID, o.Date, o.TimeOfDay)
}

// ReminderKey builds the ledger key for a reminder occurrence.
func ReminderKey(medicationID string, d civil.Date, t dbtypes.TimeOfDay) string {
	return fmt.Sprintf("remind/%s/%s/%s", medicationID, d, t)
}

// ConfigError is a reminder time that could not be parsed.
type ConfigError struct {
	MedicationID   string
	MedicationName string
	Value          string
	Err            error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("medication %q: reminder time %q: %v", e.MedicationName, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Ledger is the part of the notification ledger the scheduler consults.
type Ledger interface {
	Has(key string) bool
}

// Occurrences expands the reminder times of med on date d in loc.  Duplicate
// times yield a single occurrence.  The result is sorted by time.
func Occurrences(med *dbtypes.Medication, d civil.Date, loc *time.Location) ([]*Occurrence, []*ConfigError) {
	var (
		occs     []*Occurrence
		problems []*ConfigError
	)

	seen := map[dbtypes.TimeOfDay]bool{}
	for _, raw := range med.ReminderTimes {
		tod, err := dbtypes.ParseTimeOfDay(raw)
		if err != nil {
			problems = append(problems, &ConfigError{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				Value:          raw,
				Err:            err,
			})
			continue
		}
		if seen[tod] {
			continue
		}
		seen[tod] = true

		occs = append(occs, &Occurrence{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Dosage:         med.Dosage,
			Date:           d,
			TimeOfDay:      tod,
			At:             tod.On(d, loc),
		})
	}

	sort.Slice(occs, func(i, j int) bool { return occs[i].At.Before(occs[j].At) })
	return occs, problems
}

// DueOccurrences returns the occurrences scheduled today (in loc) within
// windowMinutes of now, in either direction, that the ledger does not already
// hold.
//
// Windows already passed are skipped rather than queued.  Unparseable reminder
// times are returned as problems and do not affect any other time or
// medication.
func DueOccurrences(meds []*dbtypes.Medication, now time.Time, loc *time.Location, windowMinutes int, ledger Ledger) ([]*Occurrence, []*ConfigError) {
	var (
		due      []*Occurrence
		problems []*ConfigError
	)

	today := civil.DateOf(now.In(loc))
	window := time.Duration(windowMinutes) * time.Minute

	for _, med := range meds {
		if len(med.ReminderTimes) == 0 || !med.ActiveOn(today) {
			continue
		}

		occs, medProblems := Occurrences(med, today, loc)
		problems = append(problems, medProblems...)

		for _, occ := range occs {
			diff := now.Sub(occ.At)
			if diff < 0 {
				diff = -diff
			}
			if diff > window {
				continue
			}
			if ledger.Has(occ.Key()) {
				continue
			}
			due = append(due, occ)
		}
	}

	return due, problems
}

// Slot status values for Today.
const (
	SlotTaken   = "taken"
	SlotPending = "pending"
)

// Slot is a row in today's schedule.
type Slot struct {
	Occurrence *Occurrence
	Status     string
}

// Today lists every reminder occurrence of the active medications today,
// ordered by time.  Slots scheduled before now are marked taken.
// Unparseable times are left out.
func Today(meds []*dbtypes.Medication, now time.Time, loc *time.Location) []*Slot {
	today := civil.DateOf(now.In(loc))

	var slots []*Slot
	for _, med := range meds {
		if !med.ActiveOn(today) {
			continue
		}
		occs, _ := Occurrences(med, today, loc)
		for _, occ := range occs {
			status := SlotPending
			if occ.At.Before(now) {
				status = SlotTaken
			}
			slots = append(slots, &Slot{Occurrence: occ, Status: status})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Occurrence.At.Before(slots[j].Occurrence.At)
	})
	return slots
}
