package ics

import (
	"errors"
	"fmt"
	"time"

	"pantallita/internal/model"
	"pantallita/internal/repo"
)

// Collect reads what an expansion needs from r: the default schedule, every
// date-specific schedule dated on or after from, and all events. A missing
// default schedule leaves Default empty. Row warnings from lenient loads
// are returned alongside.
func Collect(r *repo.Repository, from time.Time) (Source, []error, error) {
	src := Source{Dated: map[string]repo.Schedule{}}
	warnings := make([]error, 0)

	def, warn, err := r.DefaultSchedule()
	var nf *model.NotFoundError
	switch {
	case errors.As(err, &nf):
	case err != nil:
		return Source{}, nil, err
	default:
		src.Default = def.Items
		warnings = append(warnings, warn...)
	}

	dates, err := r.ScheduleDates()
	if err != nil {
		return Source{}, nil, err
	}
	cutoff := repo.Day(from)
	for _, d := range dates {
		if d.Before(cutoff) {
			continue
		}
		sched, warn, err := r.ScheduleFor(d)
		if err != nil {
			return Source{}, nil, fmt.Errorf("ics: %s: %w", d.Format(model.DateLayout), err)
		}
		src.Dated[d.Format(model.DateLayout)] = sched
		warnings = append(warnings, warn...)
	}

	events, warn, err := r.Events()
	if err != nil {
		return Source{}, nil, err
	}
	src.Events = events
	warnings = append(warnings, warn...)

	return src, warnings, nil
}
