package report

import (
	"bytes"
	"errors"
	"testing"

	"medreminder/dbtypes"
	"medreminder/forecast"

	"github.com/google/go-cmp/cmp"
)

func testMeds() []*dbtypes.Medication {
	return []*dbtypes.Medication{
		{ID: "p", Name: "Paracetamol", Dosage: "500mg", TimesPerDay: 2, Stock: 20, ReminderTimes: []string{"08:00", "20:00"}},
		{ID: "d", Name: "Vitamin D", TimesPerDay: 1, Stock: 100, ReminderTimes: []string{"09:00"}},
		{ID: "x", Name: "Mystery", TimesPerDay: 0, Stock: 5, ReminderTimes: []string{"25:99"}},
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(testMeds(), dbtypes.DefaultSettings())
	want := &Summary{
		TotalMedications: 3,
		TotalStock:       125,
		LowStock:         2,
		DailyDoses:       3,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad summary; diff (-got +want)\n%s", diff)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil, dbtypes.DefaultSettings())
	if diff := cmp.Diff(got, &Summary{}); diff != "" {
		t.Errorf("Bad summary; diff (-got +want)\n%s", diff)
	}
}

func TestForecasts(t *testing.T) {
	rows := Forecasts(testMeds(), dbtypes.DefaultSettings())
	if len(rows) != 3 {
		t.Fatalf("Got %d rows; want 3", len(rows))
	}

	type row struct {
		Name  string
		Days  float64
		Tier  forecast.Tier
		Error bool
	}
	var got []row
	for _, r := range rows {
		got = append(got, row{r.Medication.Name, r.Forecast.DaysRemaining, r.Forecast.Tier, r.Err != nil})
	}
	want := []row{
		{"Paracetamol", 10, forecast.TierCritical, false},
		{"Vitamin D", 100, forecast.TierOK, false},
		{"Mystery", 0, forecast.TierCritical, true},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad forecasts; diff (-got +want)\n%s", diff)
	}
	if !errors.Is(rows[2].Err, forecast.ErrDivisionByZero) {
		t.Errorf("Mystery error = %v; want ErrDivisionByZero", rows[2].Err)
	}
}

func TestWriteReminderSchedule(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReminderSchedule(&buf, testMeds()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := "medication,dosage,reminder_time\n" +
		"Paracetamol,500mg,08:00\n" +
		"Paracetamol,500mg,20:00\n" +
		"Vitamin D,,09:00\n" +
		"Mystery,,25:99\n"
	if diff := cmp.Diff(buf.String(), want); diff != "" {
		t.Errorf("Bad CSV; diff (-got +want)\n%s", diff)
	}
}
