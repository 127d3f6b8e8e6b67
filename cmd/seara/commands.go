package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"seara/internal/adapters"
	"seara/internal/amqp"
	"seara/internal/backend"
	"seara/internal/cache"
	"seara/internal/cli"
	"seara/internal/config"
	"seara/internal/core"
	"seara/internal/export"
	applog "seara/internal/log"
	"seara/internal/services"
	"seara/internal/sheets"
	sgoogle "seara/internal/sheets/google"
	"seara/internal/worker"
)

const (
	readyTimeout   = 15 * time.Second
	cleanupEvery   = time.Minute
	flagDateLayout = core.DayLayout
)

type command struct {
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"add":        {"record a transaction", (*app).cmdAdd},
	"delete":     {"delete a transaction by id", (*app).cmdDelete},
	"list":       {"list transactions", (*app).cmdList},
	"summary":    {"income, expense and balance", (*app).cmdSummary},
	"categories": {"totals per category", (*app).cmdCategories},
	"monthly":    {"income and expense per month", (*app).cmdMonthly},
	"export":     {"export transactions as CSV or to Google Sheets", (*app).cmdExport},
	"watch":      {"print the summary every time the data changes", (*app).cmdWatch},
}

var commandOrder = []string{"add", "delete", "list", "summary", "categories", "monthly", "export", "watch"}

// app is one signed-in CLI session over the configured backend.
type app struct {
	cfg           *config.Config
	logger        *applog.Logger
	out           io.Writer
	backend       backend.Backend
	notifications *amqp.Client
	cleanup       backend.CleanupFunc
	caches        *cache.Manager
	session       *services.Session

	// sheetWriter opens the Google Sheets destination of export --sheets.
	sheetWriter func(ctx context.Context) (sheets.RowWriter, error)
}

func newApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, out io.Writer, id cli.Identity) (*app, error) {
	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:           cfg,
		logger:        logger,
		out:           out,
		backend:       res.Backend,
		notifications: res.Notifications,
		cleanup:       res.Cleanup,
		caches:        cache.NewManager(logger.Logger),
	}
	a.sheetWriter = a.googleSheetWriter

	authn, err := cli.SignIn(ctx, logger, id)
	if err != nil {
		a.close()
		return nil, err
	}

	sessionCfg := services.DefaultSessionConfig()
	sessionCfg.Location = cfg.Location()
	sessionCfg.SummaryCacheSize = cfg.SummaryCacheSize
	sessionCfg.SummaryCacheTTL = cfg.SummaryCacheTTL
	sessionCfg.CacheManager = a.caches
	sessionCfg.Logger = logger
	sessionCfg.OnStreamError = func(err *services.StreamError) {
		logger.WarnContext(ctx, "Showing last known data", applog.FieldUserID, err.UserID, applog.FieldError, err.Err)
	}
	a.session = services.NewSession(authn, res.Backend, sessionCfg)
	a.caches.StartCleanup(cleanupEvery)

	if err := a.session.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := a.session.WaitReady(readyCtx); err != nil {
		a.close()
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return a, nil
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return cmd.run(a, ctx, args)
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	a.caches.Stop()
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			a.logger.Warn("Backend cleanup failed", applog.FieldError, err)
		}
	}
}

func (a *app) googleSheetWriter(ctx context.Context) (sheets.RowWriter, error) {
	if !a.cfg.SheetsEnabled() {
		return nil, errors.New("GOOGLE_SPREADSHEET_ID is not set")
	}
	return sgoogle.New(ctx, sgoogle.Config{
		SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
		SheetName:       a.cfg.GoogleExportSheetName,
		CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
		CredentialsFile: a.cfg.GoogleServiceAccountFile,
	}, a.logger)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

type rangeFlags struct {
	from, to string
}

func addRangeFlags(fs *flag.FlagSet) *rangeFlags {
	r := &rangeFlags{}
	fs.StringVar(&r.from, "from", "", "first day of the range (YYYY-MM-DD)")
	fs.StringVar(&r.to, "to", "", "last day of the range (YYYY-MM-DD)")
	return r
}

// dateRange returns nil when neither bound is given. A single bound is an
// error: an open range has no meaning for the views.
func (r *rangeFlags) dateRange(loc *time.Location) (*core.DateRange, error) {
	if r.from == "" && r.to == "" {
		return nil, nil
	}
	if r.from == "" || r.to == "" {
		return nil, errors.New("--from and --to must be given together")
	}
	from, err := time.ParseInLocation(flagDateLayout, r.from, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid --from %q: %w", r.from, err)
	}
	to, err := time.ParseInLocation(flagDateLayout, r.to, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid --to %q: %w", r.to, err)
	}
	if to.Before(from) {
		return nil, errors.New("--to is before --from")
	}
	return &core.DateRange{From: from, To: to}, nil
}

// parseRange parses --from and --to plus whatever flags extra registers.
func (a *app) parseRange(name string, args []string, extra func(*flag.FlagSet)) (*core.DateRange, error) {
	fs := newFlagSet(name, a.out)
	rf := addRangeFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return rf.dateRange(a.session.Location())
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a.out)
	var (
		desc     = fs.String("desc", "", "description")
		amount   = fs.String("amount", "", "amount, e.g. 150.50 or 150,50")
		category = fs.String("category", "Outros", "category")
		txType   = fs.String("type", string(core.Expense), "income or expense")
		status   = fs.String("status", "", "pago, a_pagar, recebido or a_receber (default by type)")
		date     = fs.String("date", "", "date of the transaction (YYYY-MM-DD, default today)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cents, err := core.ParseDecimalToCents(*amount)
	if err != nil {
		return fmt.Errorf("invalid --amount %q: %w", *amount, err)
	}
	in := core.TransactionInput{
		Description: *desc,
		Amount:      core.Money{Cents: cents},
		Category:    *category,
		Type:        core.TransactionType(*txType),
		Status:      core.Status(*status),
		Date:        *date,
	}
	if in.Status == "" {
		in.Status = defaultStatus(in.Type)
	}
	if in.Date == "" {
		in.Date = time.Now().In(a.session.Location()).Format(core.DayLayout)
	}

	tx, err := a.session.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s\n", tx.ID)
	return nil
}

func defaultStatus(t core.TransactionType) core.Status {
	if t == core.Income {
		return core.StatusReceived
	}
	return core.StatusPaid
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: seara delete <id>")
	}
	id := fs.Arg(0)
	if err := a.session.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", id)
	return nil
}

func (a *app) cmdList(_ context.Context, args []string) error {
	rng, err := a.parseRange("list", args, nil)
	if err != nil {
		return err
	}
	loc := a.session.Location()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATA\tDESCRIÇÃO\tVALOR\tCATEGORIA\tTIPO\tSTATUS")
	for _, tx := range a.session.Transactions(rng) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID,
			core.FormatDateIn(tx.Date, core.DisplayDateLayout, loc),
			tx.Description,
			tx.Amount,
			tx.Category,
			tx.Type.Label(),
			tx.Status.Label())
	}
	return w.Flush()
}

func (a *app) cmdSummary(_ context.Context, args []string) error {
	rng, err := a.parseRange("summary", args, nil)
	if err != nil {
		return err
	}
	a.printSummary(rng)
	return nil
}

func (a *app) printSummary(rng *core.DateRange) {
	s := a.session.Summary(rng)
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Entradas\t%s\t\n", s.Income)
	fmt.Fprintf(w, "Saídas\t%s\t\n", s.Expense)
	fmt.Fprintf(w, "Saldo\t%s\t\n", s.Balance)
	w.Flush()
}

func (a *app) cmdCategories(_ context.Context, args []string) error {
	rng, err := a.parseRange("categories", args, nil)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, c := range a.session.Categories(rng) {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", c.Name, c.Amount, c.Percent)
	}
	return w.Flush()
}

func (a *app) cmdMonthly(_ context.Context, args []string) error {
	rng, err := a.parseRange("monthly", args, nil)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MÊS\tENTRADAS\tSAÍDAS")
	for _, m := range a.session.Monthly(rng) {
		fmt.Fprintf(w, "%04d-%02d\t%s\t%s\n", m.Year, m.Month, m.Income, m.Expense)
	}
	return w.Flush()
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	var (
		dir     string
		toSheet bool
		stdout  bool
	)
	rng, err := a.parseRange("export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&dir, "dir", a.cfg.ExportDir, "directory to write "+export.FileName+" into")
		fs.BoolVar(&toSheet, "sheets", false, "write to the configured Google Sheets tab instead")
		fs.BoolVar(&stdout, "stdout", false, "write the CSV to standard output")
	})
	if err != nil {
		return err
	}
	records := a.session.Transactions(rng)
	loc := a.session.Location()

	switch {
	case stdout:
		return export.WriteCSV(a.out, records, loc)
	case toSheet:
		w, err := a.sheetWriter(ctx)
		if err != nil {
			return fmt.Errorf("open sheet: %w", err)
		}
		ref, err := export.WriteSheet(ctx, w, records, loc)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "exported %d transactions to %s\n", len(records), ref)
	default:
		path, err := export.WriteFile(dir, records, loc)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "exported %d transactions to %s\n", len(records), path)
	}
	a.logger.InfoContext(ctx, "Export finished",
		applog.FieldUserID, a.session.UserID(),
		applog.FieldOperation, applog.OpExport,
		applog.FieldCount, len(records))
	return nil
}

// watch prints the summary now and after every change until ctx ends. With
// AMQP configured, change messages from other processes refresh the store.
// With --sheets the configured tab is kept equal to the export.
func (a *app) cmdWatch(ctx context.Context, args []string) error {
	var toSheet bool
	rng, err := a.parseRange("watch", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&toSheet, "sheets", false, "mirror the export to the configured Google Sheets tab")
	})
	if err != nil {
		return err
	}

	if toSheet {
		w, err := a.sheetWriter(ctx)
		if err != nil {
			return fmt.Errorf("open sheet: %w", err)
		}
		mirrorCfg := worker.DefaultSheetMirrorConfig()
		mirrorCfg.Range = rng
		mirrorCfg.Logger = a.logger
		mirror := worker.NewSheetMirror(a.session, w, mirrorCfg)
		if err := mirror.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			mirror.Stop(stopCtx)
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.notifications != nil {
		g.Go(func() error {
			err := a.notifications.ConsumeTransactionChanges(ctx, adapters.RefreshOnChange(a.backend))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		for {
			changed := a.session.Changed()
			fmt.Fprintf(a.out, "-- %s\n", time.Now().In(a.session.Location()).Format(core.DisplayDateTimeLayout))
			a.printSummary(rng)
			if err := a.session.StreamErr(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
		}
	})
	return g.Wait()
}
