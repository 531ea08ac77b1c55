package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medreminder/dbtypes"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
)

func openTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return d
}

func TestMedicationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestDir(t).Medications()

	threshold := 4.0
	meds := []*dbtypes.Medication{
		{
			ID:                "id-1",
			Name:              "Paracetamol",
			Dosage:            "1 tablet, after food",
			TimesPerDay:       2,
			Stock:             20,
			ReminderTimes:     []string{"08:00", "20:00"},
			UnitCost:          0.25,
			StartDate:         civil.Date{Year: 2024, Month: 1, Day: 1},
			EndDate:           civil.Date{Year: 2024, Month: 2, Day: 1},
			LowStockThreshold: &threshold,
			Notes:             "with water",
			Priority:          "high",
			Category:          "tablet",
		},
		{
			ID:          "id-2",
			Name:        "Vitamin D",
			TimesPerDay: 1,
			Stock:       100,
		},
	}

	if err := store.SaveAll(ctx, meds); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, meds); diff != "" {
		t.Errorf("Bad medications; diff (-got +want)\n%s", diff)
	}
}

func TestMedicationsMissingFile(t *testing.T) {
	got, err := openTestDir(t).Medications().LoadAll(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Got %d medications from a missing file; want 0", len(got))
	}
}

func TestMedicationsBadRowIsIsolated(t *testing.T) {
	d := openTestDir(t)
	content := "id,name,dosage,times_per_day,stock,reminder_times\n" +
		"a,Good,1 tab,1,30,08:00\n" +
		"b,Bad,1 tab,twice,30,08:00\n" +
		"c,AlsoGood,1 tab,2,10,\"08:00, 20:00\"\n"
	if err := os.WriteFile(filepath.Join(d.Path(), MedicationsFile), []byte(content), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := d.Medications().LoadAll(context.Background())

	var recErrs dbtypes.RecordErrors
	if !errors.As(err, &recErrs) {
		t.Fatalf("LoadAll() error = %v; want RecordErrors", err)
	}
	if len(recErrs) != 1 || recErrs[0].Name != "Bad" || recErrs[0].Record != 2 {
		t.Errorf("Bad record errors: %v", recErrs)
	}

	names := []string{}
	for _, m := range got {
		names = append(names, m.Name)
	}
	if diff := cmp.Diff(names, []string{"Good", "AlsoGood"}); diff != "" {
		t.Errorf("Bad names; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(got[1].ReminderTimes, []string{"08:00", "20:00"}); diff != "" {
		t.Errorf("Bad reminder times; diff (-got +want)\n%s", diff)
	}
}

func TestMedicationsRejectsMissingAndDuplicateIDs(t *testing.T) {
	d := openTestDir(t)
	content := "id,name,dosage,times_per_day,stock,reminder_times\n" +
		",Aspirin,1 tab,1,2,08:00\n" +
		",Insulin,1 unit,1,3,08:00\n" +
		"x,Metformin,1 tab,1,30,08:00\n" +
		"x,Copy,1 tab,1,30,08:00\n"
	if err := os.WriteFile(filepath.Join(d.Path(), MedicationsFile), []byte(content), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := d.Medications().LoadAll(context.Background())

	var recErrs dbtypes.RecordErrors
	if !errors.As(err, &recErrs) {
		t.Fatalf("LoadAll() error = %v; want RecordErrors", err)
	}

	type rejected struct {
		Record  int
		Name    string
		Missing bool
		Dup     bool
	}
	var gotRejected []rejected
	for _, re := range recErrs {
		gotRejected = append(gotRejected, rejected{re.Record, re.Name, errors.Is(re, ErrMissingID), errors.Is(re, ErrDuplicateID)})
	}
	wantRejected := []rejected{
		{1, "Aspirin", true, false},
		{2, "Insulin", true, false},
		{4, "Copy", false, true},
	}
	if diff := cmp.Diff(gotRejected, wantRejected); diff != "" {
		t.Errorf("Bad record errors; diff (-got +want)\n%s", diff)
	}

	if len(got) != 1 || got[0].Name != "Metformin" {
		t.Errorf("Got medications %v; want only Metformin", got)
	}
}

func TestMedicationsRejectsNonFiniteAmounts(t *testing.T) {
	d := openTestDir(t)
	content := "id,name,times_per_day,stock,unit_cost,low_stock_threshold\n" +
		"a,NaNStock,1,NaN,,\n" +
		"b,InfStock,1,+Inf,,\n" +
		"c,NegStock,1,-4,,\n" +
		"d,NaNCost,1,10,NaN,\n" +
		"e,InfThreshold,1,10,,Inf\n" +
		"f,Fine,1,10,0.5,3\n"
	if err := os.WriteFile(filepath.Join(d.Path(), MedicationsFile), []byte(content), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := d.Medications().LoadAll(context.Background())

	var recErrs dbtypes.RecordErrors
	if !errors.As(err, &recErrs) {
		t.Fatalf("LoadAll() error = %v; want RecordErrors", err)
	}
	var names []string
	for _, re := range recErrs {
		if !errors.Is(re, ErrNotFinite) {
			t.Errorf("Record %d (%s): error %v; want ErrNotFinite", re.Record, re.Name, re)
		}
		names = append(names, re.Name)
	}
	if diff := cmp.Diff(names, []string{"NaNStock", "InfStock", "NegStock", "NaNCost", "InfThreshold"}); diff != "" {
		t.Errorf("Bad rejected records; diff (-got +want)\n%s", diff)
	}
	if len(got) != 1 || got[0].Name != "Fine" {
		t.Errorf("Got medications %v; want only Fine", got)
	}
}

func TestHistoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestDir(t).History()

	ts := time.Date(2024, 1, 1, 8, 3, 0, 0, time.UTC)
	entries := []*dbtypes.HistoryEntry{
		{Time: ts, MedicationID: "id-1", MedicationName: "Paracetamol", Action: dbtypes.ActionAdded, Detail: "initial stock: 20"},
		{Time: ts.Add(time.Hour), MedicationID: "id-1", MedicationName: "Paracetamol", Action: dbtypes.ActionReminded, Detail: "08:00, with \"quotes\""},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, entries); diff != "" {
		t.Errorf("Bad history; diff (-got +want)\n%s", diff)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openTestDir(t)
	store := d.Ledger()

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Missing ledger file loaded %d entries", len(empty))
	}

	entries := map[string]dbtypes.LedgerEntry{
		"remind/id-1/2024-01-01/08:00": {At: time.Date(2024, 1, 1, 8, 3, 0, 0, time.UTC), Status: dbtypes.StatusNotified},
	}
	if err := store.Save(ctx, entries); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, entries); diff != "" {
		t.Errorf("Bad ledger; diff (-got +want)\n%s", diff)
	}

	// No temporary files are left behind.
	files, err := os.ReadDir(d.Path())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(files) != 1 || files[0].Name() != LedgerFile {
		names := []string{}
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("Unexpected files in data dir: %v", names)
	}
}

func TestSettingsDefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	d := openTestDir(t)

	got, err := d.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, dbtypes.DefaultSettings()); diff != "" {
		t.Errorf("Missing settings file should give defaults; diff (-got +want)\n%s", diff)
	}

	content := "notifications_enabled: false\nadvice_window_minutes: 15\n"
	if err := os.WriteFile(filepath.Join(d.Path(), SettingsFile), []byte(content), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err = d.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := dbtypes.DefaultSettings()
	want.NotificationsEnabled = false
	want.AdviceWindowMinutes = 15
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad settings; diff (-got +want)\n%s", diff)
	}

	want.LowStockThreshold = 3
	if err := d.Settings().Put(ctx, want); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got, err = d.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad settings after Put; diff (-got +want)\n%s", diff)
	}
}

func TestSettingsPutRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	d := openTestDir(t)

	bad := dbtypes.DefaultSettings()
	bad.AdviceWindowMinutes = -1
	if err := d.Settings().Put(ctx, bad); !errors.Is(err, dbtypes.ErrInvalidSettings) {
		t.Fatalf("Put() error = %v; want ErrInvalidSettings", err)
	}
	if _, err := os.Stat(filepath.Join(d.Path(), SettingsFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Invalid settings were written to disk (stat error %v)", err)
	}

	got, err := d.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Get() after rejected Put: %v", err)
	}
	if diff := cmp.Diff(got, dbtypes.DefaultSettings()); diff != "" {
		t.Errorf("Bad settings; diff (-got +want)\n%s", diff)
	}
}

func TestSettingsGetRejectsInvalidFile(t *testing.T) {
	d := openTestDir(t)
	if err := os.WriteFile(filepath.Join(d.Path(), SettingsFile), []byte("advice_window_minutes: -5\n"), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := d.Settings().Get(context.Background()); !errors.Is(err, dbtypes.ErrInvalidSettings) {
		t.Errorf("Get() error = %v; want ErrInvalidSettings", err)
	}
}
