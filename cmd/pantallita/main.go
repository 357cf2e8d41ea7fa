package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"pantallita/internal/config"
	"pantallita/internal/csvrow"
	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/refresh"
	"pantallita/internal/repo"
	"pantallita/internal/timeline"
	"pantallita/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; non-empty values override the config
// file.
type flagConfig struct {
	configPath string
	root       string
	date       string
	listen     string
	lenient    bool
	force      bool
}

// app is one CLI invocation.
type app struct {
	flags flagConfig
	conf  *config.Config
	loc   *time.Location
	now   func() time.Time
	out   io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pantallita", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := bindFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pantallita [flags] [validate|show|now|templates|apply-template NAME DATE|add-event LINE|remove-event DATE TOPLINE|add-item DATE LINE|prune|serve]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := newApp(flags, stdout)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	cmd, rest := "serve", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "validate":
		err = a.validate()
	case "show":
		err = a.show()
	case "now":
		err = a.showNow()
	case "templates":
		err = a.templates()
	case "apply-template":
		err = a.applyTemplate(rest)
	case "add-event":
		err = a.addEvent(rest)
	case "remove-event":
		err = a.removeEvent(rest)
	case "add-item":
		err = a.addItem(rest)
	case "prune":
		err = a.prune()
	case "serve":
		err = a.serve()
	default:
		fs.Usage()
		return 2
	}
	if err != nil {
		appLog.Error(cmd+" failed", err)
		return 1
	}
	return 0
}

func bindFlags(fs *flag.FlagSet) *flagConfig {
	var cfg flagConfig
	fs.StringVar(&cfg.configPath, "config", "", "Path to config file (created with defaults if missing)")
	fs.StringVar(&cfg.root, "root", "", "Content repository root (overrides config if set)")
	fs.StringVar(&cfg.date, "date", "", "Date to show, YYYY-MM-DD (default today)")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&cfg.lenient, "lenient", false, "Skip bad rows instead of failing")
	fs.BoolVar(&cfg.force, "force", false, "Overwrite an existing schedule when applying a template")
	return &cfg
}

// newApp resolves the effective config: defaults, then the config file,
// then PANTALLITA_* variables (from the environment or ./.env), then flags.
func newApp(flags *flagConfig, out io.Writer) (*app, error) {
	if _, err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	conf := config.DefaultConfig()
	if flags.configPath != "" {
		var err error
		if conf, err = config.Load(flags.configPath); err != nil {
			return nil, err
		}
	}
	if err := conf.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.root != "" {
		conf.RepoRoot = flags.root
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.lenient {
		strict := false
		conf.Strict = &strict
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}

	appLog.Debug("effective config",
		"repo_root", conf.RepoRoot,
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"strict", conf.IsStrict(),
		"check_images", conf.CheckImages,
	)
	return &app{flags: *flags, conf: conf, loc: loc, now: time.Now, out: out}, nil
}

func (a *app) open(strict bool) (*repo.Repository, error) {
	return repo.Open(a.conf.RepoRoot, repo.Options{Strict: strict, CheckImages: a.conf.CheckImages})
}

func (a *app) today() time.Time { return a.now().In(a.loc) }

// day returns the -date flag, or today.
func (a *app) day() (time.Time, error) {
	if a.flags.date == "" {
		return repo.Day(a.today()), nil
	}
	return parseDate(a.flags.date)
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// validate reads every file in the repository and reports every problem.
func (a *app) validate() error {
	r, err := a.open(false)
	if err != nil {
		return err
	}

	problems := 0
	report := func(errs ...error) {
		for _, e := range errs {
			problems++
			fmt.Fprintln(a.out, e)
		}
	}

	_, warn, err := r.Events()
	report(warn...)
	if err != nil {
		report(err)
	}

	def, warn, err := r.DefaultSchedule()
	report(warn...)
	if err != nil {
		report(err)
	}
	for _, o := range timeline.Overlaps(def) {
		fmt.Fprintf(a.out, "%s: note: %q overlaps %q on %s\n", repo.DefaultSchedule, o.A.Name, o.B.Name, o.Days.Names())
	}

	dates, err := r.ScheduleDates()
	if err != nil {
		return err
	}
	for _, d := range dates {
		_, warn, err := r.ScheduleFor(d)
		report(warn...)
		if err != nil {
			report(err)
		}
	}

	templates, err := r.Templates()
	if err != nil {
		return err
	}
	for _, t := range templates {
		_, warn, err := r.LoadTemplate(t.Name)
		report(warn...)
		if err != nil {
			report(err)
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Fprintf(a.out, "ok: %d dated schedule(s), %d template(s)\n", len(dates), len(templates))
	return nil
}

func (a *app) show() error {
	day, err := a.day()
	if err != nil {
		return err
	}
	r, err := a.open(a.conf.IsStrict())
	if err != nil {
		return err
	}
	snap, err := r.Load(day)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "date: %s\n", snap.Date.Format(model.DateLayout))
	fmt.Fprintf(a.out, "schedule: %s\n", snap.Schedule.Source)
	for _, it := range snap.Schedule.Items {
		printItem(a.out, it)
	}
	fmt.Fprintln(a.out, "events:")
	for _, ev := range snap.Events {
		if ev.Date.Equal(snap.Date) {
			printEvent(a.out, ev)
		}
	}
	for _, w := range snap.Warnings {
		fmt.Fprintf(a.out, "warning: %v\n", w)
	}
	return nil
}

func (a *app) showNow() error {
	r, err := a.open(a.conf.IsStrict())
	if err != nil {
		return err
	}
	now := a.today()
	snap, err := r.Load(now)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "now: %s\n", now.Format("2006-01-02 15:04 MST"))
	for _, ev := range timeline.ActiveEvents(snap.Events, now) {
		printEvent(a.out, ev)
	}
	for _, it := range timeline.ActiveItems(snap.Schedule, now) {
		printItem(a.out, it)
		if it.Progressbar {
			fmt.Fprintf(a.out, "    progress %3.0f%%\n", 100*timeline.Progress(it, now))
		}
	}
	return nil
}

func (a *app) templates() error {
	r, err := a.open(a.conf.IsStrict())
	if err != nil {
		return err
	}
	templates, err := r.Templates()
	if err != nil {
		return err
	}
	for _, t := range templates {
		fmt.Fprintf(a.out, "%s\t%s\n", t.Name, t.Path)
	}
	return nil
}

func (a *app) applyTemplate(args []string) error {
	if len(args) != 2 {
		return errors.New("apply-template needs NAME DATE")
	}
	day, err := parseDate(args[1])
	if err != nil {
		return err
	}
	r, err := a.open(true)
	if err != nil {
		return err
	}
	sched, err := r.ApplyTemplate(args[0], day, a.flags.force)
	if errors.Is(err, repo.ErrExists) {
		return fmt.Errorf("%w (use -force to overwrite)", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%d items)\n", sched.Source, len(sched.Items))
	return nil
}

// addEvent appends one ephemeral_events.csv line to the events file.
func (a *app) addEvent(args []string) error {
	if len(args) != 1 {
		return errors.New("add-event needs one quoted LINE")
	}
	ev, err := csvrow.ParseEventLine(args[0])
	if err != nil {
		return err
	}
	r, err := a.open(true)
	if err != nil {
		return err
	}
	events, _, err := r.Events()
	if err != nil {
		return err
	}
	if err := r.WriteEvents(append(events, ev)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "added:")
	printEvent(a.out, ev)
	return nil
}

// removeEvent drops the events on DATE whose top line is TOPLINE.
func (a *app) removeEvent(args []string) error {
	if len(args) != 2 {
		return errors.New("remove-event needs DATE TOPLINE")
	}
	day, err := parseDate(args[0])
	if err != nil {
		return err
	}
	r, err := a.open(true)
	if err != nil {
		return err
	}
	events, _, err := r.Events()
	if err != nil {
		return err
	}

	kept := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		if ev.Date.Equal(day) && strings.EqualFold(ev.TopLine, args[1]) {
			continue
		}
		kept = append(kept, ev)
	}
	removed := len(events) - len(kept)
	if removed == 0 {
		return fmt.Errorf("%s: no event on %s with top line %q", repo.EventsFile, args[0], args[1])
	}
	if err := r.WriteEvents(kept); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d event(s)\n", removed)
	return nil
}

// addItem appends one schedule line to the date-specific schedule for DATE,
// creating it when the date has none.
func (a *app) addItem(args []string) error {
	if len(args) != 2 {
		return errors.New("add-item needs DATE LINE")
	}
	day, err := parseDate(args[0])
	if err != nil {
		return err
	}
	it, err := csvrow.ParseScheduleLine(args[1])
	if err != nil {
		return err
	}
	r, err := a.open(true)
	if err != nil {
		return err
	}

	dates, err := r.ScheduleDates()
	if err != nil {
		return err
	}
	items := []model.ScheduleItem{}
	if slices.ContainsFunc(dates, day.Equal) {
		sched, _, err := r.ScheduleFor(day)
		if err != nil {
			return err
		}
		items = sched.Items
	}
	items = append(items, it)

	if err := r.WriteSchedule(day, items, true); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%d items)\n", repo.DatedSchedule(day), len(items))
	return nil
}

// prune drops past events and date-specific schedules older than
// keep_schedule_days.
func (a *app) prune() error {
	r, err := a.open(true)
	if err != nil {
		return err
	}
	today := repo.Day(a.today())

	events, _, err := r.Events()
	if err != nil {
		return err
	}
	kept, removed := timeline.PruneEvents(events, today)
	if removed > 0 {
		if err := r.WriteEvents(kept); err != nil {
			return err
		}
	}

	dates, err := r.ScheduleDates()
	if err != nil {
		return err
	}
	stale := timeline.StaleDates(dates, today, a.conf.KeepScheduleDays)
	for _, d := range stale {
		if err := r.DeleteSchedule(d); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "pruned %d event(s), %d schedule(s)\n", removed, len(stale))
	return nil
}

func (a *app) serve() error {
	appLog.Info("pantallita starting", "version", version, "repo_root", a.conf.RepoRoot)

	r, err := a.open(a.conf.IsStrict())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := refresh.New(r, a.loc)
	// A bad first load is kept as the status; the API reports it until a
	// later reload succeeds.
	_, _ = f.Reload()
	if err := f.Start(a.conf.RefreshCron); err != nil {
		return err
	}
	defer f.Stop()

	err = web.NewServer(a.conf, f).ListenAndServe(ctx)
	appLog.Info("pantallita exiting")
	return err
}

func printItem(w io.Writer, it model.ScheduleItem) {
	state := ""
	if !it.Enabled {
		state = " (disabled)"
	}
	days := it.Days.Names()
	if days == "" {
		days = "all day"
	}
	fmt.Fprintf(w, "  %02d:%02d-%02d:%02d  %-20s %s  [%s]%s\n",
		it.StartHour, it.StartMin, it.EndHour, it.EndMin, it.Name, it.Image, days, state)
}

func printEvent(w io.Writer, ev model.EventRecord) {
	when := "all day"
	if ev.HasHours {
		when = fmt.Sprintf("%02d-%02d", ev.StartHour, ev.EndHour)
	}
	fmt.Fprintf(w, "  %s %-7s %s / %s  %s %s\n",
		ev.DateString(), when, ev.TopLine, ev.BottomLine, strings.ToLower(string(ev.Color)), ev.Image)
}
