// medreminder is a long-lived program that sends medication reminders and
// low-stock alerts from a local data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"medreminder/badgerstore"
	"medreminder/filestore"
	"medreminder/healthz"
	"medreminder/ledger"
	"medreminder/notify"
	"medreminder/poller"
	"medreminder/webui"

	"github.com/sendgrid/sendgrid-go"
	"go.opencensus.io/stats/view"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

var (
	dataDir         = flag.String("data-dir", "data", "Directory holding medications, history, settings and the notification ledger.")
	store           = flag.String("store", "file", "Backend for history and the notification ledger: file or badger.")
	timezone        = flag.String("timezone", "Local", "IANA timezone that reminder times are interpreted in.")
	pollPeriod      = flag.Duration("poll-period", 1*time.Minute, "Time between reminder evaluation passes.")
	sendTimeout     = flag.Duration("send-timeout", 30*time.Second, "Timeout for delivering a single notification.")
	debugListen     = flag.String("debug-listen", "127.0.0.1:8001", "Server address:port for debug endpoint.")
	uiListen        = flag.String("ui-listen", "", "Server address:port for the dashboard.  Empty disables the dashboard.")
	sendgridKeyFile = flag.String("sendgrid-key-file", "", "File containing a Sendgrid API key.  Empty disables email notifications.")
	mailFrom        = flag.String("mail-from", "", "Sender address for email notifications.")
	mailTo          = flag.String("mail-to", "", "Comma-separated recipient addresses for email notifications.")
	announceCommand = flag.String("announce-command", "", "Program run with each delivered notification's message as its last argument (for example espeak).")
	tracing         = flag.Bool("tracing", false, "Write OpenTelemetry traces to stdout?")
	metricsPeriod   = flag.Duration("metrics-period", 0, "Period for logging metric views.  Zero disables metric logging.")
)

func main() {
	flag.Parse()

	slog.Info("Starting up")
	slog.Info(
		"Flags",
		slog.String("data-dir", *dataDir),
		slog.String("store", *store),
		slog.String("timezone", *timezone),
		slog.Duration("poll-period", *pollPeriod),
		slog.Duration("send-timeout", *sendTimeout),
		slog.String("debug-listen", *debugListen),
		slog.String("ui-listen", *uiListen),
		slog.String("sendgrid-key-file", *sendgridKeyFile),
		slog.String("mail-from", *mailFrom),
		slog.String("mail-to", *mailTo),
		slog.String("announce-command", *announceCommand),
		slog.Bool("tracing", *tracing),
		slog.Duration("metrics-period", *metricsPeriod),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx); err != nil {
		slog.ErrorContext(ctx, "Error", slog.Any("err", err))
		os.Exit(255)
	}
}

func do(ctx context.Context) error {
	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		return fmt.Errorf("while loading timezone %q: %w", *timezone, err)
	}

	if *tracing {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("while creating trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error while shutting down tracer provider", slog.Any("err", err))
			}
		}()
	}

	if err := poller.RegisterViews(); err != nil {
		return fmt.Errorf("while registering metric views: %w", err)
	}
	if *metricsPeriod > 0 {
		view.SetReportingPeriod(*metricsPeriod)
		view.RegisterExporter(&slogExporter{})
	}

	dir, err := filestore.Open(*dataDir)
	if err != nil {
		return fmt.Errorf("while opening data directory: %w", err)
	}

	settingsStore := dir.Settings()
	settings, err := settingsStore.Get(ctx)
	if err != nil {
		return fmt.Errorf("while reading settings: %w", err)
	}

	var (
		historyStore interface {
			poller.HistoryStore
			webui.HistoryStore
		}
		ledgerStore ledger.Store
	)
	switch *store {
	case "file":
		historyStore = dir.History()
		ledgerStore = dir.Ledger()
	case "badger":
		db, err := badgerstore.Open(filepath.Join(dir.Path(), "badger"))
		if err != nil {
			return fmt.Errorf("while opening badger store: %w", err)
		}
		defer db.Close()
		historyStore = db.History()
		ledgerStore = db.Ledger(settings.LedgerRetention())
	default:
		return fmt.Errorf("unknown -store %q (want file or badger)", *store)
	}

	sink, err := newSink()
	if err != nil {
		return fmt.Errorf("while setting up notifications: %w", err)
	}

	health := healthz.New(3*(*pollPeriod) + *sendTimeout)

	p := poller.New(
		dir.Medications(),
		settingsStore,
		historyStore,
		ledgerStore,
		sink,
		poller.WithLocation(loc),
		poller.WithPollPeriod(*pollPeriod),
		poller.WithSendTimeout(*sendTimeout),
		poller.WithTickObserver(health.MarkTick),
	)

	debugServeMux := http.NewServeMux()
	debugServeMux.Handle("/healthz", health)
	debugServeMux.Handle("/readyz", health)
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	servers := []*http.Server{
		{
			Addr:    *debugListen,
			Handler: debugServeMux,

			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}

	if *uiListen != "" {
		uiServeMux := http.NewServeMux()
		webui.New(dir.Medications(), settingsStore, historyStore, loc).Register(uiServeMux)
		servers = append(servers, &http.Server{
			Addr:    *uiListen,
			Handler: uiServeMux,

			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20,
		})
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		signalCh := make(chan os.Signal, 1)
		signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(signalCh)

		select {
		case sig := <-signalCh:
			slog.InfoContext(ctx, "Shutting down", slog.String("signal", sig.String()))
			return errShutdown
		case <-ctx.Done():
			return nil
		}
	})

	eg.Go(func() error {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("while running poller: %w", err)
		}
		return nil
	})

	for _, srv := range servers {
		srv := srv
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s died: %w", srv.Addr, err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

var errShutdown = errors.New("shutdown requested")

// newSink assembles the notification pipeline from flags.  Notifications are
// always logged; email and announcements are added when configured.
func newSink() (notify.Sink, error) {
	sinks := notify.Multi{&notify.LogSink{}}

	if *sendgridKeyFile != "" {
		key, err := os.ReadFile(*sendgridKeyFile)
		if err != nil {
			return nil, fmt.Errorf("while reading Sendgrid key: %w", err)
		}
		if *mailFrom == "" || *mailTo == "" {
			return nil, fmt.Errorf("-mail-from and -mail-to are required with -sendgrid-key-file")
		}
		client := sendgrid.NewSendClient(strings.TrimSpace(string(key)))
		sinks = append(sinks, notify.NewMailSink(client, "MedReminder", *mailFrom, splitList(*mailTo)))
	}

	var sink notify.Sink = sinks
	if *announceCommand != "" {
		fields := strings.Fields(*announceCommand)
		sink = &notify.Announcing{
			Inner:     sinks,
			Announcer: &notify.CommandAnnouncer{Path: fields[0], Args: fields[1:]},
		}
	}
	return sink, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// slogExporter writes opencensus view data to the structured log.
type slogExporter struct{}

func (e *slogExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		attrs := []any{slog.String("view", vd.View.Name)}
		for _, t := range row.Tags {
			attrs = append(attrs, slog.String(t.Key.Name(), t.Value))
		}
		if count, ok := row.Data.(*view.CountData); ok {
			attrs = append(attrs, slog.Int64("count", count.Value))
		}
		slog.Info("Metric", attrs...)
	}
}
