// Package report builds the read-only views over the medication list: the
// dashboard summary, per-medication forecasts and the reminder schedule.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"medreminder/dbtypes"
	"medreminder/forecast"
)

type Summary struct {
	TotalMedications int
	TotalStock       float64
	// Medications whose stock forecast is CRITICAL, including those that
	// cannot be forecast at all.
	LowStock   int
	DailyDoses int
}

func Summarize(meds []*dbtypes.Medication, settings *dbtypes.Settings) *Summary {
	s := &Summary{
		TotalMedications: len(meds),
	}
	for _, med := range meds {
		s.TotalStock += med.Stock
		s.DailyDoses += med.TimesPerDay

		// A forecast error still carries the CRITICAL fallback.
		f, _ := forecast.ForMedication(med, settings)
		if f.Tier == forecast.TierCritical {
			s.LowStock++
		}
	}
	return s
}

// ForecastRow is one medication's stock forecast.  Err is set when the
// medication could not be forecast.
type ForecastRow struct {
	Medication *dbtypes.Medication
	Forecast   forecast.Forecast
	Err        error
}

func Forecasts(meds []*dbtypes.Medication, settings *dbtypes.Settings) []*ForecastRow {
	rows := make([]*ForecastRow, 0, len(meds))
	for _, med := range meds {
		f, err := forecast.ForMedication(med, settings)
		rows = append(rows, &ForecastRow{Medication: med, Forecast: f, Err: err})
	}
	return rows
}

// WriteReminderSchedule writes one CSV row per configured reminder time, in
// medication order.  Times are written as configured, so malformed entries
// show up in the report too.
func WriteReminderSchedule(w io.Writer, meds []*dbtypes.Medication) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"medication", "dosage", "reminder_time"}); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}
	for _, med := range meds {
		for _, t := range med.ReminderTimes {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if err := cw.Write([]string{med.Name, med.Dosage, t}); err != nil {
				return fmt.Errorf("while writing row for %q: %w", med.Name, err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("while flushing reminder schedule: %w", err)
	}
	return nil
}
