package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pantallita/internal/csvrow"
	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/validate"
)

var eventsHeader = []string{
	"# Ephemeral Events - Auto-generated",
	"# Format: YYYY-MM-DD,TopLine,BottomLine,Image,Color[,StartHour,EndHour]",
	"# TopLine = displays on TOP of screen",
	"# BottomLine = displays on BOTTOM (usually the name)",
	"# Times are optional (24-hour format, 0-23). If omitted, event shows all day.",
}

var scheduleHeader = []string{
	"# Format: name,enabled,days,start_hour,start_min,end_hour,end_min,image,progressbar",
	"# enabled: 1=true, 0=false",
	`# days: 0-6 for Mon-Sun (e.g., "01234" = Mon-Fri)`,
	"# progressbar: 1=true, 0=false",
}

// ErrExists is returned when a write would replace an existing schedule
// file without being forced.
var ErrExists = errors.New("repo: file already exists")

// WriteEvents replaces ephemeral_events.csv with events sorted by date.
// Every event is validated before anything is written.
func (r *Repository) WriteEvents(events []model.EventRecord) error {
	sorted := make([]model.EventRecord, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	rows := make([][]string, 0, len(sorted))
	for i, ev := range sorted {
		if err := validate.Event(ev); err != nil {
			return fmt.Errorf("repo: event %d (%s): %w", i, ev.DateString(), err)
		}
		rows = append(rows, csvrow.FormatEvent(ev))
	}

	if err := r.writeCSV(EventsFile, eventsHeader, rows); err != nil {
		return err
	}
	appLog.Info("events written", "root", r.root, "count", len(rows))
	return nil
}

// WriteDefaultSchedule replaces schedules/default_schedule.csv.
func (r *Repository) WriteDefaultSchedule(items []model.ScheduleItem) error {
	for i, it := range items {
		if it.Days.Empty() {
			return fmt.Errorf("repo: item %d (%s): %w", i, it.Name,
				&model.ValidationError{Field: "days", Msg: "the default schedule needs at least one day"})
		}
	}
	return r.writeSchedule(DefaultSchedule, items)
}

// WriteSchedule writes the date-specific schedule for date. It refuses to
// replace an existing file unless force is set.
func (r *Repository) WriteSchedule(date time.Time, items []model.ScheduleItem, force bool) error {
	name := DatedSchedule(Day(date))
	if !force {
		if _, err := fs.Stat(r.fsys, name); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
	}
	return r.writeSchedule(name, items)
}

// ApplyTemplate copies the named template into the date slot for date.
// Days are cleared so every copied item applies to that whole date.
func (r *Repository) ApplyTemplate(name string, date time.Time, force bool) (Schedule, error) {
	tpl, _, err := r.LoadTemplate(name)
	if err != nil {
		return Schedule{}, err
	}

	items := make([]model.ScheduleItem, len(tpl.Items))
	for i, it := range tpl.Items {
		it.Days = 0
		items[i] = it
	}

	day := Day(date)
	if err := r.WriteSchedule(day, items, force); err != nil {
		return Schedule{}, err
	}
	appLog.Info("template applied", "template", name, "date", day.Format(model.DateLayout), "items", len(items))

	return Schedule{Source: DatedSchedule(day), Date: day, DateSpecific: true, Items: items}, nil
}

// DeleteSchedule removes the date-specific schedule for date. Removing a
// file that does not exist is a NotFoundError.
func (r *Repository) DeleteSchedule(date time.Time) error {
	name := DatedSchedule(Day(date))
	err := os.Remove(r.abs(name))
	if errors.Is(err, fs.ErrNotExist) {
		return &model.NotFoundError{Path: name}
	}
	if err != nil {
		return fmt.Errorf("repo: delete %s: %w", name, err)
	}
	appLog.Info("schedule deleted", "root", r.root, "file", name)
	return nil
}

func (r *Repository) writeSchedule(name string, items []model.ScheduleItem) error {
	rows := make([][]string, 0, len(items))
	for i, it := range items {
		if err := validate.Schedule(it); err != nil {
			return fmt.Errorf("repo: item %d (%s): %w", i, it.Name, err)
		}
		rows = append(rows, csvrow.FormatSchedule(it))
	}

	if err := r.writeCSV(name, scheduleHeader, rows); err != nil {
		return err
	}
	appLog.Info("schedule written", "root", r.root, "file", name, "count", len(rows))
	return nil
}

func (r *Repository) abs(name string) string {
	return filepath.Join(r.root, filepath.FromSlash(name))
}

// writeCSV writes header comment lines followed by rows, atomically via a
// temp file in the target directory and a rename.
func (r *Repository) writeCSV(name string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	for _, h := range header {
		buf.WriteString(h + "\n")
	}
	for _, row := range rows {
		buf.WriteString(csvrow.EncodeLine(row) + "\n")
	}

	target := r.abs(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("repo: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pantallita-*.tmp")
	if err != nil {
		return fmt.Errorf("repo: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("repo: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("repo: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repo: write %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("repo: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("repo: write %s: %w", name, err)
	}
	return nil
}
