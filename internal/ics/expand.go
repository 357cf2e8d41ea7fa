package ics

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/repo"
	"pantallita/internal/timeline"
)

const (
	defaultMaxOccurrencesPerItem = 500
)

// rruleDays maps Monday-first day indices to rrule weekdays.
var rruleDays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Source is the repository content an expansion works from.
type Source struct {
	// Default holds the items of schedules/default_schedule.csv.
	Default []model.ScheduleItem
	// Dated maps "YYYY-MM-DD" to the date-specific schedule of that day.
	// A day present here drops every default occurrence on that day.
	Dated  map[string]repo.Schedule
	Events []model.EventRecord
}

// ExpandConfig controls how expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone schedule times are read in. If nil,
	// time.Local is used.
	DisplayLocation *time.Location

	// From is the first day of the window; only its date is used.
	From time.Time
	// Days is the number of days in the window.
	Days int

	// MaxOccurrencesPerItem is a safety cap per default item. If zero,
	// defaultMaxOccurrencesPerItem is used.
	MaxOccurrencesPerItem int
}

// ExpandResult wraps the expanded occurrences and the names of default
// items that hit the cap.
type ExpandResult struct {
	Occurrences    []model.Occurrence
	TruncatedItems []string
}

// Expand turns src into concrete occurrences inside the configured window,
// sorted by start time. Default items recur weekly on their days; days with
// a date-specific schedule use only that schedule; events appear on their
// own date.
func Expand(src Source, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Days <= 0 {
		return result, errors.New("expand: Days must be positive")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerItem <= 0 {
		cfg.MaxOccurrencesPerItem = defaultMaxOccurrencesPerItem
	}

	loc := cfg.DisplayLocation
	y, m, d := cfg.From.In(loc).Date()
	rangeStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	rangeEnd := rangeStart.AddDate(0, 0, cfg.Days)

	occs := make([]model.Occurrence, 0)

	for _, it := range src.Default {
		got, hitCap := expandDefaultItem(it, src.Dated, rangeStart, rangeEnd, cfg.MaxOccurrencesPerItem)
		if hitCap {
			result.TruncatedItems = append(result.TruncatedItems, it.Name)
			appLog.Error("expand: truncated occurrences for item due to cap",
				errors.New("max occurrences reached"),
				"item", it.Name,
				"cap", cfg.MaxOccurrencesPerItem,
			)
		}
		occs = append(occs, got...)
	}

	for key, sched := range src.Dated {
		day, err := time.ParseInLocation(model.DateLayout, key, loc)
		if err != nil {
			appLog.Error("expand: bad dated schedule key", err, "key", key)
			continue
		}
		if day.Before(rangeStart) || !day.Before(rangeEnd) {
			continue
		}
		wd := model.DayIndex(day.Weekday())
		for _, it := range sched.Items {
			if !it.Enabled || !timeline.AppliesOn(it, wd, true) {
				continue
			}
			occs = append(occs, itemOccurrence(it, day))
		}
	}

	for _, ev := range src.Events {
		y, m, d := ev.Date.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if day.Before(rangeStart) || !day.Before(rangeEnd) {
			continue
		}
		occs = append(occs, eventOccurrence(ev, day))
	}

	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].Summary < occs[j].Summary
	})

	result.Occurrences = occs
	return result, nil
}

// expandDefaultItem expands one default item with a weekly rule, skipping
// days that have their own schedule. It reports whether the cap was hit.
func expandDefaultItem(it model.ScheduleItem, dated map[string]repo.Schedule, rangeStart, rangeEnd time.Time, maxOcc int) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)
	if !it.Enabled || it.Days.Empty() {
		return out, false
	}

	byDay := make([]rrule.Weekday, 0, it.Days.Len())
	for _, d := range it.Days.Days() {
		byDay = append(byDay, rruleDays[d])
	}

	dtStart := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(),
		it.StartHour, it.StartMin, 0, 0, rangeStart.Location())

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtStart,
		Byweekday: byDay,
		Until:     rangeEnd,
	})
	if err != nil {
		appLog.Error("expand: failed to build rule", err, "item", it.Name, "days", it.Days.String())
		return out, false
	}

	hitCap := false
	for _, start := range r.Between(rangeStart, rangeEnd, true) {
		if !start.Before(rangeEnd) {
			continue
		}
		if _, ok := dated[start.Format(model.DateLayout)]; ok {
			continue
		}
		if len(out) == maxOcc {
			hitCap = true
			break
		}
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		out = append(out, itemOccurrence(it, day))
	}
	return out, hitCap
}

func itemOccurrence(it model.ScheduleItem, day time.Time) model.Occurrence {
	start := time.Date(day.Year(), day.Month(), day.Day(), it.StartHour, it.StartMin, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), it.EndHour, it.EndMin, 0, 0, day.Location())
	return model.Occurrence{
		Kind:        model.KindSchedule,
		InstanceKey: instanceKey(model.KindSchedule, it.Name, start),
		Summary:     it.Name,
		Image:       it.Image,
		Progressbar: it.Progressbar,
		Start:       start,
		End:         end,
	}
}

// eventOccurrence places ev on day. An hour window covers whole hours, so
// EndHour 23 ends at midnight.
func eventOccurrence(ev model.EventRecord, day time.Time) model.Occurrence {
	occ := model.Occurrence{
		Kind:        model.KindEvent,
		Summary:     strings.TrimSpace(ev.TopLine + " " + ev.BottomLine),
		Description: ev.TopLine + "\n" + ev.BottomLine,
		Image:       ev.Image,
		Color:       ev.Color,
	}
	if ev.HasHours {
		// Wall clock hours, so a DST change earlier in the day does not
		// shift the window.
		occ.Start = atHour(day, ev.StartHour)
		occ.End = atHour(day, ev.EndHour+1)
	} else {
		occ.AllDay = true
		occ.Start = day
		occ.End = day.AddDate(0, 0, 1)
	}
	occ.InstanceKey = instanceKey(model.KindEvent, occ.Summary, occ.Start)
	return occ
}

func atHour(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

func instanceKey(kind model.OccurrenceKind, name string, start time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	return string(kind) + "-" + slug + "-" + start.Format("20060102T1504")
}
