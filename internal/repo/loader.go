// Package repo loads a Pantallita content repository from disk: the
// ephemeral events file, the default and date-specific schedules and the
// schedule templates.
//
// Loading is read-only and synchronous. Every problem found in a file is
// reported with the file name and line number.
package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"pantallita/internal/csvrow"
	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/validate"
)

// Options controls how strictly a repository is read.
type Options struct {
	// Strict fails a load on the first file containing any bad row, with
	// every problem of the load joined into the error. When false, bad rows
	// are skipped, logged and returned as warnings. Either way each line is
	// judged alone: an unbalanced quote costs one row, not the rest of the
	// file.
	Strict bool

	// CheckImages requires every referenced image to exist in its img/
	// directory.
	CheckImages bool
}

// Repository is a content repository rooted at a directory.
type Repository struct {
	root string
	fsys fs.FS
	opts Options
}

// Schedule is the set of items read from one schedule or template file.
type Schedule struct {
	// Source is the file the items came from, relative to the root.
	Source string
	// Date is the date of a date-specific file, zero otherwise.
	Date time.Time
	// DateSpecific is true when Source is schedules/schedule_<date>.csv.
	DateSpecific bool
	Items        []model.ScheduleItem
}

// Template is a schedule file under schedules/templates. Templates are
// never applied automatically.
type Template struct {
	Name string
	Path string
}

// Snapshot is what a display would show on one date.
type Snapshot struct {
	Date      time.Time
	Events    []model.EventRecord
	Schedule  Schedule
	Templates []Template
	// Warnings holds the rows skipped in lenient mode.
	Warnings []error
}

// Open returns a Repository for the directory at root.
func Open(root string, opts Options) (*Repository, error) {
	if root == "" {
		return nil, errors.New("repo: root is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repo: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo: %s is not a directory", root)
	}
	return &Repository{root: root, fsys: os.DirFS(root), opts: opts}, nil
}

// Root returns the directory the repository was opened at.
func (r *Repository) Root() string { return r.root }

// Options returns the options the repository was opened with.
func (r *Repository) Options() Options { return r.opts }

// Load reads everything needed for date: all events, the active schedule
// and the template list.
func (r *Repository) Load(date time.Time) (*Snapshot, error) {
	day := Day(date)

	events, evProblems, err := r.readEvents()
	if err != nil {
		return nil, err
	}
	sched, schedProblems, err := r.readScheduleFor(day)
	if err != nil {
		return nil, err
	}
	templates, err := r.Templates()
	if err != nil {
		return nil, err
	}

	warnings, err := r.settle(append(evProblems, schedProblems...))
	if err != nil {
		return nil, err
	}

	appLog.Debug("repository loaded",
		"root", r.root,
		"date", day.Format(model.DateLayout),
		"events", len(events),
		"schedule", sched.Source,
		"items", len(sched.Items),
		"templates", len(templates),
		"warnings", len(warnings),
	)

	return &Snapshot{
		Date:      day,
		Events:    events,
		Schedule:  sched,
		Templates: templates,
		Warnings:  warnings,
	}, nil
}

// Events reads ephemeral_events.csv. A missing file means no events.
func (r *Repository) Events() ([]model.EventRecord, []error, error) {
	events, problems, err := r.readEvents()
	if err != nil {
		return nil, nil, err
	}
	warnings, err := r.settle(problems)
	if err != nil {
		return nil, nil, err
	}
	return events, warnings, nil
}

// ScheduleFor returns the schedule in effect on date: the date-specific
// file when it exists, the default schedule otherwise. The two are never
// merged.
func (r *Repository) ScheduleFor(date time.Time) (Schedule, []error, error) {
	sched, problems, err := r.readScheduleFor(Day(date))
	if err != nil {
		return Schedule{}, nil, err
	}
	warnings, err := r.settle(problems)
	if err != nil {
		return Schedule{}, nil, err
	}
	return sched, warnings, nil
}

// DefaultSchedule reads schedules/default_schedule.csv.
func (r *Repository) DefaultSchedule() (Schedule, []error, error) {
	items, problems, err := r.readSchedule(DefaultSchedule, true)
	if errors.Is(err, fs.ErrNotExist) {
		return Schedule{}, nil, &model.NotFoundError{Path: DefaultSchedule}
	}
	if err != nil {
		return Schedule{}, nil, err
	}
	warnings, err := r.settle(problems)
	if err != nil {
		return Schedule{}, nil, err
	}
	return Schedule{Source: DefaultSchedule, Items: items}, warnings, nil
}

// Templates lists schedules/templates/*.csv sorted by name.
func (r *Repository) Templates() ([]Template, error) {
	entries, err := fs.ReadDir(r.fsys, TemplatesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Template{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: list templates: %w", err)
	}

	out := make([]Template, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), csvExt) {
			continue
		}
		out = append(out, Template{
			Name: strings.TrimSuffix(e.Name(), csvExt),
			Path: path.Join(TemplatesDir, e.Name()),
		})
	}
	return out, nil
}

// LoadTemplate reads the template with the given name (without .csv).
func (r *Repository) LoadTemplate(name string) (Schedule, []error, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Schedule{}, nil, &model.ValidationError{Field: "template", Msg: fmt.Sprintf("bad template name %q", name)}
	}
	p := path.Join(TemplatesDir, name+csvExt)

	items, problems, err := r.readSchedule(p, false)
	if errors.Is(err, fs.ErrNotExist) {
		return Schedule{}, nil, &model.NotFoundError{Field: "template", Path: p}
	}
	if err != nil {
		return Schedule{}, nil, err
	}
	warnings, err := r.settle(problems)
	if err != nil {
		return Schedule{}, nil, err
	}
	return Schedule{Source: p, Items: items}, warnings, nil
}

// ScheduleDates lists the dates that have a date-specific schedule file,
// oldest first.
func (r *Repository) ScheduleDates() ([]time.Time, error) {
	entries, err := fs.ReadDir(r.fsys, SchedulesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: list schedules: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := parseDatedName(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Images lists the .bmp files available for kind, sorted by name. A missing
// directory yields an empty list.
func (r *Repository) Images(kind ImageKind) ([]string, error) {
	dir := kind.Dir()
	if dir == "" {
		return nil, fmt.Errorf("repo: unknown image kind %q", kind)
	}
	entries, err := fs.ReadDir(r.fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: list images: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && validate.IsImageName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// settle applies the strictness policy to the row problems of one load.
func (r *Repository) settle(problems []error) ([]error, error) {
	if len(problems) == 0 {
		return nil, nil
	}
	if r.opts.Strict {
		return nil, errors.Join(problems...)
	}
	for _, p := range problems {
		appLog.Warn("row skipped", "root", r.root, "problem", p.Error())
	}
	return problems, nil
}

func (r *Repository) readEvents() ([]model.EventRecord, []error, error) {
	events, problems, err := readFile(r, EventsFile, csvrow.ParseEvent, func(ev model.EventRecord) error {
		if err := validate.Event(ev); err != nil {
			return err
		}
		return r.checkImage(EventImages, ev.Image)
	})
	if errors.Is(err, fs.ErrNotExist) {
		appLog.Info("no events file; showing no events", "root", r.root, "file", EventsFile)
		return []model.EventRecord{}, nil, nil
	}
	return events, problems, err
}

func (r *Repository) readScheduleFor(day time.Time) (Schedule, []error, error) {
	dated := DatedSchedule(day)

	items, problems, err := r.readSchedule(dated, false)
	if err == nil {
		return Schedule{Source: dated, Date: day, DateSpecific: true, Items: items}, problems, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Schedule{}, nil, err
	}

	items, problems, err = r.readSchedule(DefaultSchedule, true)
	if errors.Is(err, fs.ErrNotExist) {
		return Schedule{}, nil, &model.NotFoundError{Path: DefaultSchedule}
	}
	if err != nil {
		return Schedule{}, nil, err
	}
	return Schedule{Source: DefaultSchedule, Items: items}, problems, nil
}

// readSchedule reads one schedule-shaped file. In the default schedule an
// item must name its days; elsewhere an empty days field means every day.
func (r *Repository) readSchedule(name string, isDefault bool) ([]model.ScheduleItem, []error, error) {
	return readFile(r, name, csvrow.ParseSchedule, func(it model.ScheduleItem) error {
		if err := validate.Schedule(it); err != nil {
			return err
		}
		if isDefault && it.Days.Empty() {
			return &model.ValidationError{Field: "days", Msg: "the default schedule needs at least one day"}
		}
		return r.checkImage(ScheduleImages, it.Image)
	})
}

func (r *Repository) checkImage(kind ImageKind, name string) error {
	if !r.opts.CheckImages {
		return nil
	}
	p := path.Join(kind.Dir(), name)
	if _, err := fs.Stat(r.fsys, p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &model.NotFoundError{Field: "image", Path: p}
		}
		return err
	}
	return nil
}

// readFile parses every row of name. Row problems are returned with their
// position; the error result is kept for I/O failures, including
// fs.ErrNotExist for a missing file.
func readFile[T any](r *Repository, name string, parse func([]string) (T, error), check func(T) error) ([]T, []error, error) {
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csvrow.ReadRows(f)
	if err != nil {
		return nil, nil, fmt.Errorf("repo: read %s: %w", name, err)
	}

	problems := make([]error, 0)
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		err := row.Err
		var rec T
		if err == nil {
			rec, err = parse(row.Fields)
		}
		if err == nil {
			err = check(rec)
		}
		if err != nil {
			problems = append(problems, model.At(err, name, row.Line))
			continue
		}
		out = append(out, rec)
	}
	return out, problems, nil
}
