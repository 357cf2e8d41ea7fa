// Package timeline answers which events and schedule items are on screen
// at a given instant, and carries the housekeeping rules for old entries.
package timeline

import (
	"sort"
	"time"

	"pantallita/internal/model"
	"pantallita/internal/repo"
)

// ActiveEvents returns the events showing at at. An event shows on its date
// for the whole day, or only between StartHour and EndHour inclusive when
// it has a window. at is read in its own location.
func ActiveEvents(events []model.EventRecord, at time.Time) []model.EventRecord {
	day := repo.Day(at)
	out := make([]model.EventRecord, 0)
	for _, ev := range events {
		if !ev.Date.Equal(day) {
			continue
		}
		if ev.HasHours && (at.Hour() < ev.StartHour || at.Hour() > ev.EndHour) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ActiveItems returns the enabled items of sched covering at. An item
// covers [start, end) on the days it lists; in a date-specific schedule an
// empty day list means the whole date.
func ActiveItems(sched repo.Schedule, at time.Time) []model.ScheduleItem {
	minute := at.Hour()*60 + at.Minute()
	day := model.DayIndex(at.Weekday())

	out := make([]model.ScheduleItem, 0)
	for _, it := range sched.Items {
		if !it.Enabled || !AppliesOn(it, day, sched.DateSpecific) {
			continue
		}
		if minute >= it.Start() && minute < it.End() {
			out = append(out, it)
		}
	}
	return out
}

// AppliesOn reports whether it runs on the weekday index day.
func AppliesOn(it model.ScheduleItem, day int, dateSpecific bool) bool {
	if it.Days.Empty() {
		return dateSpecific
	}
	return it.Days.Has(day)
}

// Progress is the elapsed fraction of it at at, clamped to [0, 1]. A
// zero-length item is complete once started.
func Progress(it model.ScheduleItem, at time.Time) float64 {
	now := float64(at.Hour()*60+at.Minute()) + float64(at.Second())/60
	start, end := float64(it.Start()), float64(it.End())
	switch {
	case now < start:
		return 0
	case now >= end:
		return 1
	default:
		return (now - start) / (end - start)
	}
}

// Overlap is a pair of items that share at least one day and whose time
// ranges intersect.
type Overlap struct {
	A, B model.ScheduleItem
	Days model.DaySet
}

// Overlaps finds overlapping pairs among the enabled items of sched. Items
// with an empty day list count as every day.
func Overlaps(sched repo.Schedule) []Overlap {
	out := make([]Overlap, 0)
	items := sched.Items
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if !a.Enabled || !b.Enabled {
				continue
			}
			shared := daysOf(a).Intersect(daysOf(b))
			if shared.Empty() {
				continue
			}
			if a.Start() < b.End() && b.Start() < a.End() {
				out = append(out, Overlap{A: a, B: b, Days: shared})
			}
		}
	}
	return out
}

func daysOf(it model.ScheduleItem) model.DaySet {
	if it.Days.Empty() {
		return model.AllDays
	}
	return it.Days
}

// PruneEvents drops events dated before today and returns the rest in
// their original order together with the number removed.
func PruneEvents(events []model.EventRecord, today time.Time) ([]model.EventRecord, int) {
	cutoff := repo.Day(today)
	kept := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		if !ev.Date.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	return kept, len(events) - len(kept)
}

// StaleDates returns the dates more than keepDays before today, oldest
// first.
func StaleDates(dates []time.Time, today time.Time, keepDays int) []time.Time {
	cutoff := repo.Day(today).AddDate(0, 0, -keepDays)
	out := make([]time.Time, 0)
	for _, d := range dates {
		if d.Before(cutoff) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
