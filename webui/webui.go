// Package webui serves a read-only dashboard over the medication list.
package webui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"medreminder/dbtypes"
	"medreminder/forecast"
	"medreminder/report"
	"medreminder/schedule"
	"medreminder/webui/uitemplates"
)

type MedicationStore interface {
	LoadAll(ctx context.Context) ([]*dbtypes.Medication, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (*dbtypes.Settings, error)
}

type HistoryStore interface {
	List(ctx context.Context) ([]*dbtypes.HistoryEntry, error)
}

// maxHistoryEntries bounds the history page.
const maxHistoryEntries = 200

type WebUI struct {
	meds     MedicationStore
	settings SettingsStore
	history  HistoryStore
	location *time.Location
	now      func() time.Time
}

func New(meds MedicationStore, settings SettingsStore, history HistoryStore, location *time.Location) *WebUI {
	return &WebUI{
		meds:     meds,
		settings: settings,
		history:  history,
		location: location,
		now:      time.Now,
	}
}

func (u *WebUI) Register(m *http.ServeMux) {
	m.HandleFunc("/", u.dashboardHandler)
	m.HandleFunc("/history", u.historyHandler)
	m.HandleFunc("/reminder-report.csv", u.reminderReportHandler)
}

// loadMedications tolerates invalid records; the dashboard shows whatever
// could be read.
func (u *WebUI) loadMedications(ctx context.Context) ([]*dbtypes.Medication, error) {
	meds, err := u.meds.LoadAll(ctx)
	var recErrs dbtypes.RecordErrors
	if errors.As(err, &recErrs) {
		slog.WarnContext(ctx, "Skipping invalid medication records", slog.Any("err", err))
		return meds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while loading medications: %w", err)
	}
	return meds, nil
}

func (u *WebUI) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	meds, err := u.loadMedications(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error while loading medications", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	settings, err := u.settings.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error while reading settings", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	now := u.now().In(u.location)
	summary := report.Summarize(meds, settings)

	params := &uitemplates.DashboardParams{
		GeneratedAt:          now.Format("2006-01-02 15:04 MST"),
		TotalMedications:     summary.TotalMedications,
		TotalStock:           fmt.Sprintf("%g", summary.TotalStock),
		LowStock:             summary.LowStock,
		DailyDoses:           summary.DailyDoses,
		NotificationsEnabled: settings.NotificationsEnabled,
	}

	for _, row := range report.Forecasts(meds, settings) {
		f := &uitemplates.DashboardForecast{
			Name:          row.Medication.Name,
			Dosage:        row.Medication.Dosage,
			Stock:         fmt.Sprintf("%g", row.Medication.Stock),
			DaysRemaining: fmt.Sprintf("%.1f", row.Forecast.DaysRemaining),
			MonthlyCost:   fmt.Sprintf("%.2f", row.Forecast.MonthlyCost),
			Tier:          row.Forecast.Tier.String(),
			TierClass:     tierClass(row.Forecast.Tier),
			Message:       row.Forecast.Message,
		}
		if row.Err != nil {
			f.DaysRemaining = "-"
		}
		params.Forecasts = append(params.Forecasts, f)
	}

	for _, slot := range schedule.Today(meds, now, u.location) {
		params.Schedule = append(params.Schedule, &uitemplates.DashboardSlot{
			Time:   slot.Occurrence.TimeOfDay.String(),
			Name:   slot.Occurrence.MedicationName,
			Dosage: slot.Occurrence.Dosage,
			Status: slot.Status,
		})
	}

	u.render(ctx, w, func(w io.Writer) error {
		return uitemplates.DashboardTemplate.Execute(w, params)
	})
}

func tierClass(t forecast.Tier) string {
	switch t {
	case forecast.TierCritical:
		return "text-bg-danger"
	case forecast.TierLow:
		return "text-bg-warning"
	default:
		return "text-bg-success"
	}
}

func (u *WebUI) historyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := u.history.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error while listing history", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	// Newest first.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time.After(entries[j].Time) })
	if len(entries) > maxHistoryEntries {
		entries = entries[:maxHistoryEntries]
	}

	params := &uitemplates.HistoryParams{
		GeneratedAt: u.now().In(u.location).Format("2006-01-02 15:04 MST"),
	}
	for _, e := range entries {
		params.Entries = append(params.Entries, &uitemplates.HistoryEntry{
			Time:       e.Time.In(u.location).Format("2006-01-02 15:04:05"),
			Medication: e.MedicationName,
			Action:     string(e.Action),
			Detail:     e.Detail,
		})
	}

	u.render(ctx, w, func(w io.Writer) error {
		return uitemplates.HistoryTemplate.Execute(w, params)
	})
}

func (u *WebUI) reminderReportHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	meds, err := u.loadMedications(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error while loading medications", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	content := bytes.Buffer{}
	if err := report.WriteReminderSchedule(&content, meds); err != nil {
		slog.ErrorContext(ctx, "Error while writing reminder report", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reminder-report.csv"`)
	if _, err := io.Copy(w, &content); err != nil {
		// It's too late to write an error to the HTTP response.
		slog.ErrorContext(ctx, "Error while writing output", slog.Any("err", err))
	}
}

// render executes a template into a buffer first, so that template errors can
// still produce a 500.
func (u *WebUI) render(ctx context.Context, w http.ResponseWriter, execute func(io.Writer) error) {
	content := bytes.Buffer{}
	if err := execute(&content); err != nil {
		slog.ErrorContext(ctx, "Error while executing template", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.Copy(w, &content); err != nil {
		// It's too late to write an error to the HTTP response.
		slog.ErrorContext(ctx, "Error while writing output", slog.Any("err", err))
	}
}
