package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantallita/internal/model"
)

var christmas = time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)

const defaultBody = `# Format: name,enabled,days,start_hour,start_min,end_hour,end_min,image,progressbar
Wake Up,1,0123456,7,0,7,30,wake_up.bmp,1
School,1,01234,8,0,15,0,school.bmp,0
`

const christmasBody = `Presents,1,,8,0,12,0,gift.bmp,1
`

const eventsBody = `# Ephemeral Events - Auto-generated
2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23
2026-01-01,Happy,New Year,fireworks.bmp,yellow
`

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func openRepo(t *testing.T, files map[string]string, opts Options) *Repository {
	t.Helper()
	r, err := Open(writeRepo(t, files), opts)
	require.NoError(t, err)
	return r
}

func TestLoad_DefaultSchedule(t *testing.T) {
	r := openRepo(t, map[string]string{
		EventsFile:      eventsBody,
		DefaultSchedule: defaultBody,
	}, Options{Strict: true})

	snap, err := r.Load(time.Date(2025, 12, 24, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), snap.Date)
	assert.Equal(t, DefaultSchedule, snap.Schedule.Source)
	assert.False(t, snap.Schedule.DateSpecific)
	require.Len(t, snap.Schedule.Items, 2)
	assert.Equal(t, "Wake Up", snap.Schedule.Items[0].Name)
	require.Len(t, snap.Events, 2)
	assert.Equal(t, model.Yellow, snap.Events[1].Color)
	assert.Empty(t, snap.Warnings)
	assert.Empty(t, snap.Templates)
}

func TestLoad_DateSpecificReplacesDefault(t *testing.T) {
	r := openRepo(t, map[string]string{
		DefaultSchedule:               defaultBody,
		DatedSchedule(christmas):      christmasBody,
		TemplatesDir + "/holiday.csv": christmasBody,
		TemplatesDir + "/weekend.csv": defaultBody,
		TemplatesDir + "/notes.txt":   "ignored",
	}, Options{Strict: true})

	snap, err := r.Load(christmas)
	require.NoError(t, err)

	assert.True(t, snap.Schedule.DateSpecific)
	assert.Equal(t, "schedules/schedule_2025-12-25.csv", snap.Schedule.Source)
	require.Len(t, snap.Schedule.Items, 1)
	assert.Equal(t, "Presents", snap.Schedule.Items[0].Name)
	assert.True(t, snap.Schedule.Items[0].Days.Empty())

	// Templates are listed but never applied.
	assert.Equal(t, []Template{
		{Name: "holiday", Path: "schedules/templates/holiday.csv"},
		{Name: "weekend", Path: "schedules/templates/weekend.csv"},
	}, snap.Templates)

	assert.Empty(t, snap.Events, "missing events file means no events")
}

func TestLoad_EmptyDateFileStillWins(t *testing.T) {
	r := openRepo(t, map[string]string{
		DefaultSchedule:          defaultBody,
		DatedSchedule(christmas): "# day off\n",
	}, Options{Strict: true})

	sched, _, err := r.ScheduleFor(christmas)
	require.NoError(t, err)
	assert.True(t, sched.DateSpecific)
	assert.Empty(t, sched.Items)
}

func TestLoad_NoScheduleIsNotFound(t *testing.T) {
	r := openRepo(t, map[string]string{EventsFile: eventsBody}, Options{Strict: true})

	_, err := r.Load(christmas)
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, DefaultSchedule, nf.Path)
}

func TestLoad_StrictJoinsAllProblems(t *testing.T) {
	r := openRepo(t, map[string]string{
		EventsFile: "2025-12-25,Merry,Christmas,tree.bmp,GREEN,0\n" +
			"2025-12-25,Merry,Christmas,tree.bmp,GREEN,20,8\n",
		DefaultSchedule: defaultBody + "Broken,1,01234,8,0,15,0,school.bmp\n",
	}, Options{Strict: true})

	_, err := r.Load(christmas)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "ephemeral_events.csv:1: format: expected 5 or 7 fields, got 6")
	assert.Contains(t, msg, "ephemeral_events.csv:2: invalid start_hour")
	assert.Contains(t, msg, "schedules/default_schedule.csv:4: format: expected 9 fields, got 8")
	assert.True(t, model.IsFormat(err))
	assert.True(t, model.IsValidation(err))
}

func TestLoad_LenientSkipsAndReports(t *testing.T) {
	r := openRepo(t, map[string]string{
		EventsFile:      eventsBody + "2026-13-01,Bad,Date,x.bmp,RED\n",
		DefaultSchedule: defaultBody + "NoDays,1,,9,0,10,0,x.bmp,0\n",
	}, Options{Strict: false})

	snap, err := r.Load(christmas)
	require.NoError(t, err)

	assert.Len(t, snap.Events, 2)
	assert.Len(t, snap.Schedule.Items, 2)
	require.Len(t, snap.Warnings, 2)

	var fe *model.FormatError
	require.ErrorAs(t, snap.Warnings[0], &fe)
	assert.Equal(t, EventsFile, fe.File)
	assert.Equal(t, 4, fe.Line)
	assert.Equal(t, "date", fe.Field)

	var ve *model.ValidationError
	require.ErrorAs(t, snap.Warnings[1], &ve)
	assert.Equal(t, DefaultSchedule, ve.File)
	assert.Equal(t, 4, ve.Line)
	assert.Equal(t, "days", ve.Field)
}

func TestLoad_LenientResumesAfterBadQuote(t *testing.T) {
	body := defaultBody +
		"\"Broken,1,0123456,8,0,9,0,x.bmp,0\n" +
		"Lunch,1,01234,12,0,13,0,lunch.bmp,0\n"
	files := map[string]string{DefaultSchedule: body}

	sched, warnings, err := openRepo(t, files, Options{Strict: false}).ScheduleFor(christmas)
	require.NoError(t, err)
	require.Len(t, sched.Items, 3)
	assert.Equal(t, "Lunch", sched.Items[2].Name)

	require.Len(t, warnings, 1)
	var fe *model.FormatError
	require.ErrorAs(t, warnings[0], &fe)
	assert.Equal(t, DefaultSchedule, fe.File)
	assert.Equal(t, 4, fe.Line)

	_, _, err = openRepo(t, files, Options{Strict: true}).ScheduleFor(christmas)
	assert.True(t, model.IsFormat(err))
}

func TestLoad_CheckImages(t *testing.T) {
	r := openRepo(t, map[string]string{
		EventsFile:                         eventsBody,
		DefaultSchedule:                    defaultBody,
		EventImagesDir + "/tree.bmp":       "BM",
		ScheduleImagesDir + "/wake_up.bmp": "BM",
		ScheduleImagesDir + "/school.bmp":  "BM",
	}, Options{Strict: false, CheckImages: true})

	snap, err := r.Load(christmas)
	require.NoError(t, err)
	assert.Len(t, snap.Events, 1)
	require.Len(t, snap.Warnings, 1)

	var nf *model.NotFoundError
	require.ErrorAs(t, snap.Warnings[0], &nf)
	assert.Equal(t, "img/events/fireworks.bmp", nf.Path)
	assert.Equal(t, 3, nf.Line)
}

func TestLoad_Idempotent(t *testing.T) {
	r := openRepo(t, map[string]string{
		EventsFile:      eventsBody,
		DefaultSchedule: defaultBody,
	}, Options{Strict: true})

	a, err := r.Load(christmas)
	require.NoError(t, err)
	b, err := r.Load(christmas)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadTemplate(t *testing.T) {
	r := openRepo(t, map[string]string{
		TemplatesDir + "/holiday.csv": christmasBody,
	}, Options{Strict: true})

	tpl, _, err := r.LoadTemplate("holiday")
	require.NoError(t, err)
	assert.Len(t, tpl.Items, 1)

	_, _, err = r.LoadTemplate("missing")
	assert.True(t, model.IsNotFound(err))

	_, _, err = r.LoadTemplate("../default_schedule")
	assert.True(t, model.IsValidation(err))
}

func TestScheduleDatesAndImages(t *testing.T) {
	r := openRepo(t, map[string]string{
		DefaultSchedule:                     defaultBody,
		DatedSchedule(christmas):            christmasBody,
		"schedules/schedule_2025-10-31.csv": christmasBody,
		"schedules/schedule_not-a-date.csv": christmasBody,
		EventImagesDir + "/tree.bmp":        "BM",
		EventImagesDir + "/Heart.BMP":       "BM",
		EventImagesDir + "/readme.txt":      "x",
	}, Options{})

	dates, err := r.ScheduleDates()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), christmas}, dates)

	imgs, err := r.Images(EventImages)
	require.NoError(t, err)
	assert.Equal(t, []string{"Heart.BMP", "tree.bmp"}, imgs)

	imgs, err = r.Images(WeatherColumns)
	require.NoError(t, err)
	assert.Empty(t, imgs)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("", Options{})
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.True(t, errors.Is(err, os.ErrNotExist))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Open(file, Options{})
	assert.Error(t, err)
}

func TestWriteEvents_SortsAndRoundTrips(t *testing.T) {
	r := openRepo(t, map[string]string{}, Options{Strict: true})

	events := []model.EventRecord{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), TopLine: "Happy", BottomLine: "New Year", Image: "fireworks.bmp", Color: model.Yellow},
		{Date: christmas, TopLine: "Merry", BottomLine: "Christmas", Image: "tree.bmp", Color: model.Green, HasHours: true, StartHour: 0, EndHour: 23},
	}
	require.NoError(t, r.WriteEvents(events))

	raw, err := os.ReadFile(filepath.Join(r.Root(), EventsFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# Ephemeral Events - Auto-generated\n"))
	assert.Contains(t, string(raw), "2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23\n2026-01-01,Happy,New Year,fireworks.bmp,YELLOW\n")

	got, warnings, err := r.Events()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []model.EventRecord{events[1], events[0]}, got)
}

func TestWriteEvents_RejectsInvalid(t *testing.T) {
	r := openRepo(t, map[string]string{EventsFile: eventsBody}, Options{Strict: true})

	err := r.WriteEvents([]model.EventRecord{{Date: christmas, TopLine: "Merry", BottomLine: "Christmas", Image: "tree.bmp", Color: "CYAN"}})
	assert.True(t, model.IsValidation(err))

	raw, err := os.ReadFile(filepath.Join(r.Root(), EventsFile))
	require.NoError(t, err)
	assert.Equal(t, eventsBody, string(raw), "file untouched")
}

func TestApplyTemplate(t *testing.T) {
	r := openRepo(t, map[string]string{
		DefaultSchedule:               defaultBody,
		TemplatesDir + "/weekend.csv": defaultBody,
	}, Options{Strict: true})

	sched, err := r.ApplyTemplate("weekend", christmas, false)
	require.NoError(t, err)
	assert.True(t, sched.DateSpecific)
	require.Len(t, sched.Items, 2)
	for _, it := range sched.Items {
		assert.True(t, it.Days.Empty())
	}

	loaded, _, err := r.ScheduleFor(christmas)
	require.NoError(t, err)
	assert.Equal(t, sched, loaded)

	_, err = r.ApplyTemplate("weekend", christmas, false)
	assert.ErrorIs(t, err, ErrExists)

	_, err = r.ApplyTemplate("weekend", christmas, true)
	assert.NoError(t, err)
}

func TestWriteDefaultScheduleAndDelete(t *testing.T) {
	r := openRepo(t, map[string]string{DatedSchedule(christmas): christmasBody}, Options{Strict: true})

	item := model.ScheduleItem{Name: "Lunch", Enabled: true, Days: model.NewDaySet(5, 6), StartHour: 12, EndHour: 13, Image: "lunch.bmp"}
	require.NoError(t, r.WriteDefaultSchedule([]model.ScheduleItem{item}))

	noDays := item
	noDays.Days = 0
	assert.True(t, model.IsValidation(r.WriteDefaultSchedule([]model.ScheduleItem{noDays})))

	require.NoError(t, r.DeleteSchedule(christmas))
	assert.True(t, model.IsNotFound(r.DeleteSchedule(christmas)))

	sched, _, err := r.ScheduleFor(christmas)
	require.NoError(t, err)
	assert.False(t, sched.DateSpecific)
	assert.Equal(t, []model.ScheduleItem{item}, sched.Items)
}

func TestWriteSchedule_NameStartingWithHash(t *testing.T) {
	r := openRepo(t, map[string]string{DefaultSchedule: defaultBody}, Options{Strict: true})

	item := model.ScheduleItem{Name: "#1 Priority", Enabled: true, Days: model.NewDaySet(0), StartHour: 8, EndHour: 9, Image: "a.bmp"}
	require.NoError(t, r.WriteSchedule(christmas, []model.ScheduleItem{item}, false))

	sched, warnings, err := r.ScheduleFor(christmas)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, sched.DateSpecific)
	assert.Equal(t, []model.ScheduleItem{item}, sched.Items)
}
