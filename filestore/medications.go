package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"medreminder/dbtypes"

	"cloud.google.com/go/civil"
)

var medicationHeader = []string{
	"id",
	"name",
	"dosage",
	"times_per_day",
	"stock",
	"reminder_times",
	"unit_cost",
	"start_date",
	"end_date",
	"low_stock_threshold",
	"notes",
	"priority",
	"category",
}

// reminderTimesSeparator joins reminder times within one CSV cell.
const reminderTimesSeparator = ", "

var (
	ErrMissingID   = errors.New("id must not be empty")
	ErrDuplicateID = errors.New("id is used by an earlier record")
	ErrNotFinite   = errors.New("must be a finite, non-negative number")
)

// Medications is a CSV-backed medication store.
type Medications struct {
	path string
}

// LoadAll reads every medication.  A missing file is an empty set.
//
// Rows that fail to decode are skipped and reported through a
// dbtypes.RecordErrors error, which is returned together with the rows that
// did decode.
func (s *Medications) LoadAll(ctx context.Context) ([]*dbtypes.Medication, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %w", s.path, err)
	}
	defer f.Close()

	return decodeMedications(f)
}

func decodeMedications(r io.Reader) ([]*dbtypes.Medication, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while reading medication header: %w", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var (
		meds    []*dbtypes.Medication
		invalid dbtypes.RecordErrors
		seen    = map[string]bool{}
	)
	for record := 1; ; record++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while reading medication record %d: %w", record, err)
		}

		get := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		med, err := decodeMedication(get)
		if err == nil && seen[med.ID] {
			err = fmt.Errorf("id %q: %w", med.ID, ErrDuplicateID)
		}
		if err != nil {
			invalid = append(invalid, &dbtypes.InvalidRecordError{
				Record: record,
				ID:     get("id"),
				Name:   get("name"),
				Err:    err,
			})
			continue
		}
		seen[med.ID] = true
		meds = append(meds, med)
	}

	if len(invalid) != 0 {
		return meds, invalid
	}
	return meds, nil
}

func decodeMedication(get func(string) string) (*dbtypes.Medication, error) {
	med := &dbtypes.Medication{
		ID:       get("id"),
		Name:     get("name"),
		Dosage:   get("dosage"),
		Notes:    get("notes"),
		Priority: get("priority"),
		Category: get("category"),
	}

	// Reminder and alert ledger keys are built from the ID.
	if med.ID == "" {
		return nil, ErrMissingID
	}

	var err error
	if med.TimesPerDay, err = strconv.Atoi(get("times_per_day")); err != nil {
		return nil, fmt.Errorf("times_per_day: %w", err)
	}
	if med.Stock, err = parseAmount(get("stock")); err != nil {
		return nil, fmt.Errorf("stock: %w", err)
	}
	if v := get("unit_cost"); v != "" {
		if med.UnitCost, err = parseAmount(v); err != nil {
			return nil, fmt.Errorf("unit_cost: %w", err)
		}
	}
	if v := get("start_date"); v != "" {
		if med.StartDate, err = civil.ParseDate(v); err != nil {
			return nil, fmt.Errorf("start_date: %w", err)
		}
	}
	if v := get("end_date"); v != "" {
		if med.EndDate, err = civil.ParseDate(v); err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
	}
	if v := get("low_stock_threshold"); v != "" {
		threshold, err := parseAmount(v)
		if err != nil {
			return nil, fmt.Errorf("low_stock_threshold: %w", err)
		}
		med.LowStockThreshold = &threshold
	}

	for _, t := range strings.Split(get("reminder_times"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			med.ReminderTimes = append(med.ReminderTimes, t)
		}
	}

	return med, nil
}

// parseAmount parses a stock level, cost or threshold.  NaN, Inf and negative
// values are rejected.
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrNotFinite)
	}
	return v, nil
}

// SaveAll replaces the stored medications.
func (s *Medications) SaveAll(ctx context.Context, meds []*dbtypes.Medication) error {
	buf := &bytes.Buffer{}
	if err := encodeMedications(buf, meds); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("while writing %s: %w", s.path, err)
	}
	return nil
}

func encodeMedications(w io.Writer, meds []*dbtypes.Medication) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(medicationHeader); err != nil {
		return fmt.Errorf("while writing medication header: %w", err)
	}

	for _, med := range meds {
		threshold := ""
		if med.LowStockThreshold != nil {
			threshold = formatFloat(*med.LowStockThreshold)
		}
		row := []string{
			med.ID,
			med.Name,
			med.Dosage,
			strconv.Itoa(med.TimesPerDay),
			formatFloat(med.Stock),
			strings.Join(med.ReminderTimes, reminderTimesSeparator),
			formatFloat(med.UnitCost),
			formatDate(med.StartDate),
			formatDate(med.EndDate),
			threshold,
			med.Notes,
			med.Priority,
			med.Category,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("while writing medication %q: %w", med.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(d civil.Date) string {
	if !d.IsValid() {
		return ""
	}
	return d.String()
}
