// medtool manages the medication list in a medreminder data directory.
//
// Commands:
//
//	add        Add a medication
//	set-stock  Set the stock of a medication
//	take       Record a dose, decrementing stock
//	delete     Delete a medication
//	list       List medications with their stock forecasts
//	report     Write the reminder schedule as CSV
//	history    Print the history log
//	settings   Print or change settings
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"medreminder/badgerstore"
	"medreminder/dblayer"
	"medreminder/dbtypes"
	"medreminder/filestore"
	"medreminder/report"

	"cloud.google.com/go/civil"
	"github.com/golang/glog"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory holding medications, history, settings and the notification ledger.")
	store   = flag.String("store", "file", "Backend for history: file or badger.  Must match the daemon.")
)

type historyStore interface {
	Append(ctx context.Context, entry *dbtypes.HistoryEntry) error
	List(ctx context.Context) ([]*dbtypes.HistoryEntry, error)
}

// env is what every command works against.
type env struct {
	dir     *filestore.Dir
	history historyStore
	db      *dblayer.DB
	out     io.Writer
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: medtool [flags] <command> [command flags]

Commands:
  add -name NAME -times-per-day N [-stock N] [-times HH:MM,...] ...
  set-stock MEDICATION STOCK
  take MEDICATION
  delete MEDICATION
  list
  report [-o FILE]
  history
  settings [-notifications=BOOL] [-threshold DAYS] [-window MINUTES] [-low-stock-alerts=BOOL] [-retention DAYS]

MEDICATION is a medication ID or name.

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	defer glog.Flush()

	glog.V(1).Infof("data-dir: %q", *dataDir)
	glog.V(1).Infof("store: %q", *store)

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		glog.Exitf("Error: %v", err)
	}
}

func do(ctx context.Context, cmd string, args []string) error {
	dir, err := filestore.Open(*dataDir)
	if err != nil {
		return fmt.Errorf("while opening data directory: %w", err)
	}

	e := &env{dir: dir, out: os.Stdout}

	switch *store {
	case "file":
		e.history = dir.History()
	case "badger":
		bdb, err := badgerstore.Open(filepath.Join(dir.Path(), "badger"))
		if err != nil {
			return fmt.Errorf("while opening badger store: %w", err)
		}
		defer bdb.Close()
		e.history = bdb.History()
	default:
		return fmt.Errorf("unknown -store %q (want file or badger)", *store)
	}

	e.db = dblayer.New(dir.Medications(), e.history)

	switch cmd {
	case "add":
		return e.add(ctx, args)
	case "set-stock":
		return e.setStock(ctx, args)
	case "take":
		return e.take(ctx, args)
	case "delete":
		return e.delete(ctx, args)
	case "list":
		return e.list(ctx, args)
	case "report":
		return e.report(ctx, args)
	case "history":
		return e.printHistory(ctx, args)
	case "settings":
		return e.settings(ctx, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (e *env) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "Medication name.")
	dosage := fs.String("dosage", "", "Dosage, free text.")
	timesPerDay := fs.Int("times-per-day", 1, "Doses per day.")
	stock := fs.Float64("stock", 0, "Units in stock.")
	times := fs.String("times", "", "Comma-separated reminder times (HH:MM, 24h).")
	unitCost := fs.Float64("unit-cost", 0, "Cost per unit.")
	start := fs.String("start", "", "First day of treatment (YYYY-MM-DD).")
	end := fs.String("end", "", "Last day of treatment (YYYY-MM-DD).")
	threshold := fs.Float64("threshold", -1, "Low-stock threshold in days.  Negative uses the global setting.")
	notes := fs.String("notes", "", "Free-form notes.")
	priority := fs.String("priority", "", "Priority: high, medium or low.")
	category := fs.String("category", "", "Category: tablet, liquid, injection or other.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	med := &dbtypes.Medication{
		Name:          *name,
		Dosage:        *dosage,
		TimesPerDay:   *timesPerDay,
		Stock:         *stock,
		ReminderTimes: strings.Split(*times, ","),
		UnitCost:      *unitCost,
		Notes:         *notes,
		Priority:      *priority,
		Category:      *category,
	}
	if *threshold >= 0 {
		med.LowStockThreshold = threshold
	}

	var err error
	if med.StartDate, err = parseDate(*start); err != nil {
		return fmt.Errorf("while parsing -start: %w", err)
	}
	if med.EndDate, err = parseDate(*end); err != nil {
		return fmt.Errorf("while parsing -end: %w", err)
	}

	med, err = e.db.CreateMedication(ctx, med)
	if err != nil {
		return fmt.Errorf("while adding medication: %w", err)
	}

	glog.Infof("Added medication %q with ID %s", med.Name, med.ID)
	fmt.Fprintln(e.out, med.ID)
	return nil
}

func parseDate(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	return civil.ParseDate(s)
}

func (e *env) setStock(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set-stock MEDICATION STOCK")
	}
	stock, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("while parsing stock %q: %w", args[1], err)
	}

	med, err := e.db.UpdateStock(ctx, args[0], stock)
	if err != nil {
		return fmt.Errorf("while updating stock: %w", err)
	}
	glog.Infof("Stock of %q is now %g", med.Name, med.Stock)
	return nil
}

func (e *env) take(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: take MEDICATION")
	}
	med, err := e.db.RecordDose(ctx, args[0])
	if err != nil {
		return fmt.Errorf("while recording dose: %w", err)
	}
	glog.Infof("Recorded dose of %q; %g left", med.Name, med.Stock)
	return nil
}

func (e *env) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete MEDICATION")
	}
	if err := e.db.DeleteMedication(ctx, args[0]); err != nil {
		return fmt.Errorf("while deleting medication: %w", err)
	}
	glog.Infof("Deleted %q", args[0])
	return nil
}

// loadMedications reports invalid records on stderr and carries on with the
// valid ones.
func (e *env) loadMedications(ctx context.Context) ([]*dbtypes.Medication, error) {
	meds, err := e.db.ListMedications(ctx)
	var recErrs dbtypes.RecordErrors
	if errors.As(err, &recErrs) {
		for _, re := range recErrs {
			glog.Warningf("Skipping invalid medication record: %v", re)
		}
		return meds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while loading medications: %w", err)
	}
	return meds, nil
}

func (e *env) list(ctx context.Context, args []string) error {
	meds, err := e.loadMedications(ctx)
	if err != nil {
		return err
	}
	settings, err := e.dir.Settings().Get(ctx)
	if err != nil {
		return fmt.Errorf("while reading settings: %w", err)
	}

	header := []string{"ID", "NAME", "DOSAGE", "PER DAY", "STOCK", "DAYS LEFT", "MONTHLY COST", "STATUS", "TIMES"}
	rows := [][]string{}
	for _, row := range report.Forecasts(meds, settings) {
		days := fmt.Sprintf("%.1f", row.Forecast.DaysRemaining)
		if row.Err != nil {
			days = "-"
		}
		rows = append(rows, []string{
			row.Medication.ID,
			row.Medication.Name,
			row.Medication.Dosage,
			strconv.Itoa(row.Medication.TimesPerDay),
			strconv.FormatFloat(row.Medication.Stock, 'g', -1, 64),
			days,
			fmt.Sprintf("%.2f", row.Forecast.MonthlyCost),
			row.Forecast.Tier.String(),
			strings.Join(row.Medication.ReminderTimes, " "),
		})
	}

	if f, ok := e.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		tw := tabwriter.NewWriter(e.out, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, r := range rows {
			fmt.Fprintln(tw, strings.Join(r, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("while writing table: %w", err)
		}

		summary := report.Summarize(meds, settings)
		fmt.Fprintf(e.out, "\n%d medications, %g units in stock, %d low, %d doses a day\n",
			summary.TotalMedications, summary.TotalStock, summary.LowStock, summary.DailyDoses)
		return nil
	}

	if err := csv.NewWriter(e.out).WriteAll(append([][]string{header}, rows...)); err != nil {
		return fmt.Errorf("while writing CSV: %w", err)
	}
	return nil
}

func (e *env) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	output := fs.String("o", "", "Output file.  Defaults to stdout.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	meds, err := e.loadMedications(ctx)
	if err != nil {
		return err
	}

	w := e.out
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("while creating %s: %w", *output, err)
		}
		defer f.Close()
		w = f
	}

	if err := report.WriteReminderSchedule(w, meds); err != nil {
		return fmt.Errorf("while writing reminder schedule: %w", err)
	}
	return nil
}

func (e *env) printHistory(ctx context.Context, args []string) error {
	entries, err := e.history.List(ctx)
	if err != nil {
		return fmt.Errorf("while listing history: %w", err)
	}

	tw := tabwriter.NewWriter(e.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMEDICATION\tACTION\tDETAIL")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Time.Local().Format(time.DateTime), entry.MedicationName, entry.Action, entry.Detail)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("while writing history: %w", err)
	}
	return nil
}

func (e *env) settings(ctx context.Context, args []string) error {
	settingsStore := e.dir.Settings()
	settings, err := settingsStore.Get(ctx)
	if err != nil {
		return fmt.Errorf("while reading settings: %w", err)
	}

	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.BoolVar(&settings.NotificationsEnabled, "notifications", settings.NotificationsEnabled, "Send notifications?")
	fs.Float64Var(&settings.LowStockThreshold, "threshold", settings.LowStockThreshold, "Global low-stock threshold in days.")
	fs.IntVar(&settings.AdviceWindowMinutes, "window", settings.AdviceWindowMinutes, "Minutes either side of a reminder time during which it fires.")
	fs.BoolVar(&settings.LowStockAlerts, "low-stock-alerts", settings.LowStockAlerts, "Send low-stock alerts?")
	fs.IntVar(&settings.LedgerRetentionDays, "retention", settings.LedgerRetentionDays, "Days to keep notification ledger entries.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NFlag() > 0 {
		if err := settings.Validate(); err != nil {
			return err
		}
		if err := settingsStore.Put(ctx, settings); err != nil {
			return fmt.Errorf("while saving settings: %w", err)
		}
		glog.Infof("Saved settings")
	}

	enc := yaml.NewEncoder(e.out)
	defer enc.Close()
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("while printing settings: %w", err)
	}
	return nil
}
