package model

import (
	"strings"
	"time"
)

// DateLayout is the on-disk date format for events and schedule file names.
const DateLayout = "2006-01-02"

// MaxLineLen is the number of characters that fit on one event text line.
const MaxLineLen = 12

// Color is an event color name as understood by the display firmware.
type Color string

const (
	Mint   Color = "MINT"
	Lilac  Color = "LILAC"
	Orange Color = "ORANGE"
	Yellow Color = "YELLOW"
	Blue   Color = "BLUE"
	White  Color = "WHITE"
	Red    Color = "RED"
	Green  Color = "GREEN"
	Pink   Color = "PINK"
	Purple Color = "PURPLE"
)

// Colors lists every accepted color in display order.
var Colors = []Color{Mint, Lilac, Orange, Yellow, Blue, White, Red, Green, Pink, Purple}

// EventRecord is one row of ephemeral_events.csv: a date-bound greeting,
// optionally limited to an hour window.
type EventRecord struct {
	Date       time.Time `csv:"date" validate:"required"`
	TopLine    string    `csv:"top_line" validate:"notblank,max=12"`
	BottomLine string    `csv:"bottom_line" validate:"notblank,max=12"`
	Image      string    `csv:"image" validate:"bmpname"`
	Color      Color     `csv:"color" validate:"oneof=MINT LILAC ORANGE YELLOW BLUE WHITE RED GREEN PINK PURPLE"`

	// HasHours is false for rows with only five fields; the event then
	// shows for the whole day and StartHour/EndHour are zero.
	HasHours  bool
	StartHour int `csv:"start_hour" validate:"min=0,max=23"`
	EndHour   int `csv:"end_hour" validate:"min=0,max=23"`
}

// DateString returns the event date in DateLayout.
func (e EventRecord) DateString() string {
	return e.Date.Format(DateLayout)
}

// ScheduleItem is one row of a schedule or template file.
type ScheduleItem struct {
	Name        string `csv:"name" validate:"notblank"`
	Enabled     bool
	Days        DaySet
	StartHour   int    `csv:"start_hour" validate:"min=0,max=23"`
	StartMin    int    `csv:"start_min" validate:"min=0,max=59"`
	EndHour     int    `csv:"end_hour" validate:"min=0,max=23"`
	EndMin      int    `csv:"end_min" validate:"min=0,max=59"`
	Image       string `csv:"image" validate:"bmpname"`
	Progressbar bool
}

// Start returns the start instant as minutes since midnight.
func (s ScheduleItem) Start() int { return s.StartHour*60 + s.StartMin }

// End returns the end instant as minutes since midnight.
func (s ScheduleItem) End() int { return s.EndHour*60 + s.EndMin }

// DaySet is a set of weekday indices, 0=Monday .. 6=Sunday.
type DaySet uint8

// AllDays contains Monday through Sunday.
const AllDays DaySet = 0x7f

// NewDaySet builds a set from indices; out-of-range indices are ignored.
func NewDaySet(days ...int) DaySet {
	var s DaySet
	for _, d := range days {
		if d >= 0 && d <= 6 {
			s |= 1 << d
		}
	}
	return s
}

// DayIndex converts a time.Weekday (Sunday=0) to the Monday-first index.
func DayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func (s DaySet) Has(day int) bool {
	return day >= 0 && day <= 6 && s&(1<<day) != 0
}

func (s DaySet) Len() int {
	n := 0
	for d := 0; d < 7; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

func (s DaySet) Empty() bool { return s == 0 }

// Days returns the members in ascending order.
func (s DaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 0; d < 7; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Intersect returns the days present in both sets.
func (s DaySet) Intersect(o DaySet) DaySet { return s & o }

// String renders the set in file form, e.g. "01234" for Mon-Fri.
func (s DaySet) String() string {
	var b strings.Builder
	for _, d := range s.Days() {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Names renders the set as short day names, e.g. "Mon,Tue".
func (s DaySet) Names() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, dayNames[d])
	}
	return strings.Join(names, ",")
}

// OccurrenceKind tells events and schedule slots apart in an export.
type OccurrenceKind string

const (
	KindEvent    OccurrenceKind = "event"
	KindSchedule OccurrenceKind = "schedule"
)

// Occurrence represents a single concrete instance of an event or a
// schedule item on a given day, in the display timezone.
type Occurrence struct {
	Kind OccurrenceKind

	// InstanceKey uniquely identifies the occurrence, derived from kind,
	// name and local start time.
	InstanceKey string

	Summary     string
	Description string
	Image       string
	Color       Color
	Progressbar bool

	// AllDay is set for events without an hour window.
	AllDay bool

	Start time.Time
	End   time.Time
}
