package repo

import (
	"path"
	"strings"
	"time"

	"pantallita/internal/model"
)

// Paths inside a content repository, slash-separated and relative to its
// root.
const (
	EventsFile      = "ephemeral_events.csv"
	SchedulesDir    = "schedules"
	DefaultSchedule = "schedules/default_schedule.csv"
	TemplatesDir    = "schedules/templates"

	EventImagesDir    = "img/events"
	ScheduleImagesDir = "img/schedules"
	WeatherColumnsDir = "img/weather/columns"
)

const (
	schedulePrefix = "schedule_"
	csvExt         = ".csv"
)

// ImageKind selects one of the image directories.
type ImageKind string

const (
	EventImages    ImageKind = "events"
	ScheduleImages ImageKind = "schedules"
	WeatherColumns ImageKind = "weather"
)

// ImageSize is the pixel size the firmware expects for each kind. Sizes are
// informational; image content is never decoded.
var ImageSize = map[ImageKind][2]int{
	EventImages:    {27, 28},
	ScheduleImages: {40, 28},
	WeatherColumns: {3, 16},
}

// Dir returns the repository directory holding images of this kind.
func (k ImageKind) Dir() string {
	switch k {
	case EventImages:
		return EventImagesDir
	case ScheduleImages:
		return ScheduleImagesDir
	case WeatherColumns:
		return WeatherColumnsDir
	default:
		return ""
	}
}

// DatedSchedule returns the path of the date-specific schedule file.
func DatedSchedule(date time.Time) string {
	return path.Join(SchedulesDir, schedulePrefix+date.Format(model.DateLayout)+csvExt)
}

// parseDatedName extracts the date from a "schedule_YYYY-MM-DD.csv" name.
func parseDatedName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, schedulePrefix) || !strings.HasSuffix(name, csvExt) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, schedulePrefix), csvExt)
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Day truncates t to its calendar date in t's own location and returns it
// as midnight UTC, the form event dates are parsed into.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
