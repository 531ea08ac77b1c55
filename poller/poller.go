// Package poller runs the reminder evaluation loop: on every tick it works out
// which reminders are due, announces them, and records them in the
// notification ledger so that each one fires at most once.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medreminder/dbtypes"
	"medreminder/forecast"
	"medreminder/ledger"
	"medreminder/notify"
	"medreminder/schedule"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDelivery    = errors.New("notification delivery failed")
	ErrPersistence = errors.New("persistence failed")
)

type MedicationStore interface {
	LoadAll(ctx context.Context) ([]*dbtypes.Medication, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (*dbtypes.Settings, error)
}

type HistoryStore interface {
	Append(ctx context.Context, entry *dbtypes.HistoryEntry) error
}

const tracerName = "medreminder/poller"

// Poller evaluates reminders on a fixed period.  Passes never overlap.
type Poller struct {
	meds     MedicationStore
	settings SettingsStore
	history  HistoryStore
	ledger   ledger.Store
	sink     notify.Sink

	location    *time.Location
	pollPeriod  time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	onTick      func(now time.Time, err error)
}

type PollerOpt func(*Poller)

// WithLocation sets the timezone reminder times are interpreted in.
func WithLocation(loc *time.Location) PollerOpt {
	return func(p *Poller) {
		p.location = loc
	}
}

func WithPollPeriod(period time.Duration) PollerOpt {
	return func(p *Poller) {
		p.pollPeriod = period
	}
}

// WithSendTimeout bounds each notification dispatch.
func WithSendTimeout(timeout time.Duration) PollerOpt {
	return func(p *Poller) {
		p.sendTimeout = timeout
	}
}

func WithClock(now func() time.Time) PollerOpt {
	return func(p *Poller) {
		p.now = now
	}
}

// WithTickObserver registers a function called after every pass run by Run.
func WithTickObserver(f func(now time.Time, err error)) PollerOpt {
	return func(p *Poller) {
		p.onTick = f
	}
}

func New(meds MedicationStore, settings SettingsStore, history HistoryStore, ledgerStore ledger.Store, sink notify.Sink, opts ...PollerOpt) *Poller {
	p := &Poller{
		meds:        meds,
		settings:    settings,
		history:     history,
		ledger:      ledgerStore,
		sink:        sink,
		location:    time.Local,
		pollPeriod:  time.Minute,
		sendTimeout: 30 * time.Second,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollPeriod)
	defer ticker.Stop()

	// Poll once right away --- ticker doesn't fire until the tick period has
	// elapsed.
	p.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		p.runTick(ctx)
	}
}

func (p *Poller) runTick(ctx context.Context) {
	now := p.now()
	err := p.Tick(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Error during poller pass", slog.Any("err", err))
	}
	if p.onTick != nil {
		p.onTick(now, err)
	}
}

// pass is the state of one evaluation pass.
type pass struct {
	settings *dbtypes.Settings
	ledger   *ledger.Ledger
	now      time.Time
	today    civil.Date
}

// Tick runs one evaluation pass as of now.
//
// Problems with individual medications or occurrences are written to the
// history log and do not stop the pass.  Tick only returns an error when the
// pass could not start: settings, medications or the ledger failed to load.
func (p *Poller) Tick(ctx context.Context, now time.Time) (retErr error) {
	tracer := otel.Tracer(tracerName)
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Poller.Tick")
	defer span.End()

	defer func() {
		recordTick(ctx, retErr)
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
	}()

	slog.DebugContext(ctx, "Starting poller pass", slog.Time("now", now))

	settings, err := p.settings.Get(ctx)
	if err != nil {
		err = fmt.Errorf("while reading settings: %w", err)
		p.appendError(ctx, now, nil, err)
		return err
	}

	if !settings.NotificationsEnabled {
		slog.DebugContext(ctx, "Notifications disabled; skipping pass")
		return nil
	}

	meds, err := p.meds.LoadAll(ctx)
	var recErrs dbtypes.RecordErrors
	if err != nil && !errors.As(err, &recErrs) {
		err = fmt.Errorf("while loading medications: %w", err)
		p.appendError(ctx, now, nil, err)
		return err
	}

	l, err := ledger.Load(ctx, p.ledger, now, settings.LedgerRetention())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		p.appendError(ctx, now, nil, err)
		return err
	}

	ps := &pass{
		settings: settings,
		ledger:   l,
		now:      now,
		today:    civil.DateOf(now.In(p.location)),
	}

	for _, re := range recErrs {
		key := fmt.Sprintf("record/%s/%d/%s", ps.today, re.Record, re.Name)
		p.reportOnce(ctx, ps, key, &dbtypes.Medication{ID: re.ID, Name: re.Name}, re)
	}

	due, problems := schedule.DueOccurrences(meds, now, p.location, settings.AdviceWindowMinutes, l)
	span.SetAttributes(
		attribute.Int("medications", len(meds)),
		attribute.Int("due", len(due)),
		attribute.Int("problems", len(problems)),
	)

	for _, problem := range problems {
		key := fmt.Sprintf("config/%s/%s/%s", problem.MedicationID, ps.today, problem.Value)
		p.reportOnce(ctx, ps, key, &dbtypes.Medication{ID: problem.MedicationID, Name: problem.MedicationName}, problem)
	}

	for _, occ := range due {
		p.remind(ctx, ps, occ)
	}

	if settings.LowStockAlerts {
		for _, med := range meds {
			p.checkStock(ctx, ps, med)
		}
	}

	return nil
}

func (p *Poller) remind(ctx context.Context, ps *pass, occ *schedule.Occurrence) {
	title := "Medication Reminder"
	message := fmt.Sprintf("Time to take %s", occ.MedicationName)
	if occ.Dosage != "" {
		message = fmt.Sprintf("Time to take %s (%s)", occ.MedicationName, occ.Dosage)
	}

	med := &dbtypes.Medication{ID: occ.MedicationID, Name: occ.MedicationName}

	err := p.send(ctx, kindReminder, title, message)
	if err != nil {
		p.appendError(ctx, ps.now, med, fmt.Errorf("%s reminder: %w", occ.TimeOfDay, err))
		return
	}

	p.appendHistory(ctx, &dbtypes.HistoryEntry{
		Time:           ps.now,
		MedicationID:   occ.MedicationID,
		MedicationName: occ.MedicationName,
		Action:         dbtypes.ActionReminded,
		Detail:         fmt.Sprintf("reminder for %s", occ.TimeOfDay),
	})

	p.commit(ctx, ps, occ.Key(), dbtypes.StatusNotified, med)
}

func stockKey(medicationID string, d civil.Date) string {
	return fmt.Sprintf("stock/%s/%s", medicationID, d)
}

// checkStock sends a low-stock alert at most once a day for medications whose
// runway is at or under their threshold.
func (p *Poller) checkStock(ctx context.Context, ps *pass, med *dbtypes.Medication) {
	if !med.ActiveOn(ps.today) {
		return
	}

	f, err := forecast.ForMedication(med, ps.settings)
	if err != nil {
		key := fmt.Sprintf("forecast/%s/%s", med.ID, ps.today)
		p.reportOnce(ctx, ps, key, med, fmt.Errorf("while forecasting stock: %w", err))
		return
	}
	if f.Tier != forecast.TierCritical {
		return
	}

	key := stockKey(med.ID, ps.today)
	if ps.ledger.Has(key) {
		return
	}

	title := "Low Stock Alert"
	message := fmt.Sprintf("Stock for %s is low. %s", med.Name, f.Message)
	if err := p.send(ctx, kindLowStock, title, message); err != nil {
		p.appendError(ctx, ps.now, med, fmt.Errorf("low stock alert: %w", err))
		return
	}

	p.appendHistory(ctx, &dbtypes.HistoryEntry{
		Time:           ps.now,
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Action:         dbtypes.ActionLowStock,
		Detail:         fmt.Sprintf("%.1f days remaining (stock %g)", f.DaysRemaining, med.Stock),
	})

	p.commit(ctx, ps, key, dbtypes.StatusNotified, med)
}

func (p *Poller) send(ctx context.Context, kind, title, message string) error {
	tracer := otel.Tracer(tracerName)
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Poller.send")
	defer span.End()

	span.SetAttributes(attribute.String("kind", kind))

	ctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	err := p.sink.Send(ctx, title, message)
	recordNotification(ctx, kind, err)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDelivery, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	slog.InfoContext(ctx, "Sent notification", slog.String("kind", kind), slog.String("message", message))
	return nil
}

// commit records key in the ledger and persists it.  If persisting fails the
// key is dropped again, so the next pass treats it as not yet recorded.
func (p *Poller) commit(ctx context.Context, ps *pass, key, status string, med *dbtypes.Medication) {
	if !ps.ledger.RecordStatus(key, ps.now, status) {
		return
	}
	if err := ps.ledger.Persist(ctx, p.ledger); err != nil {
		ps.ledger.Forget(key)
		p.appendError(ctx, ps.now, med, fmt.Errorf("%w: recording %s: %w", ErrPersistence, key, err))
	}
}

// reportOnce writes problem to the history log unless it was already
// reported today.
func (p *Poller) reportOnce(ctx context.Context, ps *pass, key string, med *dbtypes.Medication, problem error) {
	if ps.ledger.Has(key) {
		return
	}
	if !p.appendError(ctx, ps.now, med, problem) {
		return
	}
	p.commit(ctx, ps, key, dbtypes.StatusReported, med)
}

func (p *Poller) appendError(ctx context.Context, now time.Time, med *dbtypes.Medication, err error) bool {
	slog.ErrorContext(ctx, "Reminder engine error", slog.Any("err", err))

	entry := &dbtypes.HistoryEntry{
		Time:   now,
		Action: dbtypes.ActionError,
		Detail: err.Error(),
	}
	if med != nil {
		entry.MedicationID = med.ID
		entry.MedicationName = med.Name
	}
	return p.appendHistory(ctx, entry)
}

func (p *Poller) appendHistory(ctx context.Context, entry *dbtypes.HistoryEntry) bool {
	if err := p.history.Append(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Error while appending history entry",
			slog.String("action", string(entry.Action)),
			slog.String("medication", entry.MedicationName),
			slog.Any("err", err))
		return false
	}
	return true
}
