// Package dbtypes holds the records shared between the stores, the reminder
// engine and the reporting code.
package dbtypes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Medication is one tracked medication.
//
// ID is generated at creation time and is what reminder occurrences are keyed
// on.  Name is for display, but the data layer still keeps it unique.
type Medication struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Dosage string `json:"dosage"`

	// How many doses are taken per day.  Also the divisor for stock
	// forecasting, so it must be at least 1 for a forecast to make sense.
	TimesPerDay int `json:"timesPerDay"`

	// The current count of stock, in doses.
	Stock float64 `json:"stock"`

	// Reminder times of day, "HH:MM" in 24 hour form.  Kept as raw strings so
	// that one bad entry can be reported without losing the others.
	ReminderTimes []string `json:"reminderTimes"`

	UnitCost float64 `json:"unitCost"`

	// Zero dates mean the range is unbounded on that side.
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`

	// Overrides Settings.LowStockThreshold when set.
	LowStockThreshold *float64 `json:"lowStockThreshold,omitempty"`

	Notes    string `json:"notes"`
	Priority string `json:"priority"`
	Category string `json:"category"`
}

// ActiveOn reports whether d falls within the medication's start and end
// dates, inclusive.
func (m *Medication) ActiveOn(d civil.Date) bool {
	if m.StartDate.IsValid() && d.Before(m.StartDate) {
		return false
	}
	if m.EndDate.IsValid() && d.After(m.EndDate) {
		return false
	}
	return true
}

// Threshold returns the low-stock threshold in effect for the medication.
func (m *Medication) Threshold(settings *Settings) float64 {
	if m.LowStockThreshold != nil {
		return *m.LowStockThreshold
	}
	return settings.LowStockThreshold
}

// Action is the kind of event recorded in the history log.
type Action string

const (
	ActionAdded        Action = "Added"
	ActionStockUpdated Action = "StockUpdated"
	ActionTaken        Action = "Taken"
	ActionReminded     Action = "Reminded"
	ActionLowStock     Action = "LowStock"
	ActionError        Action = "Error"
	ActionDeleted      Action = "Deleted"
)

// HistoryEntry is one line of the append-only history log.
type HistoryEntry struct {
	Time           time.Time `json:"time"`
	MedicationID   string    `json:"medicationID"`
	MedicationName string    `json:"medicationName"`
	Action         Action    `json:"action"`
	Detail         string    `json:"detail"`
}

// Ledger entry statuses.
const (
	// StatusNotified marks an occurrence whose notification was delivered.
	StatusNotified = "notified"

	// StatusReported marks a problem that has already been written to the
	// history log today.
	StatusReported = "reported"
)

// LedgerEntry records when a ledger key was first recorded.
type LedgerEntry struct {
	At     time.Time `json:"at"`
	Status string    `json:"status"`
}

// Settings are the user-facing knobs of the reminder engine.
type Settings struct {
	NotificationsEnabled bool    `json:"notificationsEnabled" yaml:"notifications_enabled"`
	LowStockThreshold    float64 `json:"lowStockThreshold" yaml:"low_stock_threshold"`
	AdviceWindowMinutes  int     `json:"adviceWindowMinutes" yaml:"advice_window_minutes"`
	LowStockAlerts       bool    `json:"lowStockAlerts" yaml:"low_stock_alerts"`
	LedgerRetentionDays  int     `json:"ledgerRetentionDays" yaml:"ledger_retention_days"`
}

// DefaultSettings returns the settings used when none have been saved.
func DefaultSettings() *Settings {
	return &Settings{
		NotificationsEnabled: true,
		LowStockThreshold:    10,
		AdviceWindowMinutes:  5,
		LowStockAlerts:       true,
		LedgerRetentionDays:  7,
	}
}

var ErrInvalidSettings = errors.New("invalid settings")

// Validate checks the settings a reminder engine cannot run with.  A
// non-positive retention is allowed and keeps ledger entries forever.
func (s *Settings) Validate() error {
	if s.AdviceWindowMinutes < 0 {
		return fmt.Errorf("%w: advice_window_minutes must not be negative, got %d", ErrInvalidSettings, s.AdviceWindowMinutes)
	}
	if math.IsNaN(s.LowStockThreshold) || math.IsInf(s.LowStockThreshold, 0) || s.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low_stock_threshold must be a non-negative number, got %g", ErrInvalidSettings, s.LowStockThreshold)
	}
	return nil
}

// LedgerRetention is the retention window as a duration.
func (s *Settings) LedgerRetention() time.Duration {
	return time.Duration(s.LedgerRetentionDays) * 24 * time.Hour
}

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is an hour and minute on a 24 hour clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".  A single-digit hour is accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	if !allDigits(hh) || !allDigits(mm) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at which t occurs on date d in loc.
func (t TimeOfDay) On(d civil.Date, loc *time.Location) time.Time {
	return civil.DateTime{
		Date: d,
		Time: civil.Time{Hour: t.Hour, Minute: t.Minute},
	}.In(loc)
}

// InvalidRecordError describes one stored medication record that could not
// be decoded.
type InvalidRecordError struct {
	// Position of the record in the backing store, 1-based.
	Record int
	ID     string
	Name   string
	Err    error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Record, e.Name, e.Err)
}

func (e *InvalidRecordError) Unwrap() error {
	return e.Err
}

// RecordErrors is returned by medication stores alongside the records that
// did decode, so that one bad record does not hide the rest.
type RecordErrors []*InvalidRecordError

func (e RecordErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, re := range e {
		parts = append(parts, re.Error())
	}
	return "invalid medication records: " + strings.Join(parts, "; ")
}
