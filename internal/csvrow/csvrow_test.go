package csvrow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantallita/internal/model"
)

func TestParseEventLine_WithHours(t *testing.T) {
	ev, err := ParseEventLine("2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23")
	require.NoError(t, err)

	assert.Equal(t, model.EventRecord{
		Date:       time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC),
		TopLine:    "Merry",
		BottomLine: "Christmas",
		Image:      "tree.bmp",
		Color:      model.Green,
		HasHours:   true,
		StartHour:  0,
		EndHour:    23,
	}, ev)
}

func TestParseEventLine_AllDayAndColorCase(t *testing.T) {
	ev, err := ParseEventLine("2026-02-14, Happy , Valentine,heart.bmp,pink")
	require.NoError(t, err)

	assert.False(t, ev.HasHours)
	assert.Equal(t, "Happy", ev.TopLine)
	assert.Equal(t, model.Pink, ev.Color)
	assert.Equal(t, "2026-02-14", ev.DateString())
}

func TestParseEvent_FieldCount(t *testing.T) {
	lines := []string{
		"2025-12-25,Merry,Christmas,tree.bmp",
		"2025-12-25,Merry,Christmas,tree.bmp,GREEN,0",
		"2025-12-25,Merry,Christmas,tree.bmp,GREEN,",
		"2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23,extra",
		"2025-12-25",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := ParseEventLine(line)
			require.Error(t, err)
			assert.True(t, model.IsFormat(err), "want FormatError, got %v", err)
		})
	}
}

func TestParseEvent_BadTypes(t *testing.T) {
	tests := []struct {
		line  string
		field string
	}{
		{"25-12-2025,Merry,Christmas,tree.bmp,GREEN", "date"},
		{"2025-02-30,Merry,Christmas,tree.bmp,GREEN", "date"},
		{"2025-12-25,Merry,Christmas,tree.bmp,GREEN,noon,23", "start_hour"},
		{"2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,late", "end_hour"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseEventLine(tt.line)
			var fe *model.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParseScheduleLine(t *testing.T) {
	it, err := ParseScheduleLine("Wake Up,1,0123456,7,0,7,30,wake_up.bmp,1")
	require.NoError(t, err)

	assert.Equal(t, model.ScheduleItem{
		Name:        "Wake Up",
		Enabled:     true,
		Days:        model.AllDays,
		StartHour:   7,
		StartMin:    0,
		EndHour:     7,
		EndMin:      30,
		Image:       "wake_up.bmp",
		Progressbar: true,
	}, it)
	assert.Equal(t, 7*60, it.Start())
	assert.Equal(t, 7*60+30, it.End())
}

func TestParseSchedule_FieldCount(t *testing.T) {
	lines := []string{
		"Wake Up,1,0123456,7,0,7,30,wake_up.bmp",
		"Wake Up,1,0123456,7,0,7,30,wake_up.bmp,1,extra",
		"Wake Up",
	}
	for _, line := range lines {
		_, err := ParseScheduleLine(line)
		assert.True(t, model.IsFormat(err), "line %q: want FormatError, got %v", line, err)
	}
}

func TestParseSchedule_BadTypes(t *testing.T) {
	tests := []struct {
		line  string
		field string
	}{
		{"School,yes,01234,8,0,15,0,school.bmp,1", "enabled"},
		{"School,1,01A34,8,0,15,0,school.bmp,1", "days"},
		{"School,1,0127,8,0,15,0,school.bmp,1", "days"},
		{"School,1,01234,8,x,15,0,school.bmp,1", "start_min"},
		{"School,1,01234,8,0,15,0,school.bmp,maybe", "progressbar"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseScheduleLine(tt.line)
			var fe *model.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParseDays(t *testing.T) {
	set, err := ParseDays("640")
	require.NoError(t, err)
	assert.Equal(t, "046", set.String())

	set, err = ParseDays("")
	require.NoError(t, err)
	assert.True(t, set.Empty())

	_, err = ParseDays("0110")
	assert.True(t, model.IsValidation(err))
}

func TestReadRows(t *testing.T) {
	body := strings.Join([]string{
		"# Ephemeral Events - Auto-generated",
		"# Format: YYYY-MM-DD,TopLine,BottomLine,Image,Color[,StartHour,EndHour]",
		"",
		"2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23",
		"   ",
		`2026-01-01,"Happy, New",Year,fireworks.bmp,YELLOW`,
		"",
	}, "\n")

	rows, err := ReadRows(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 4, rows[0].Line)
	assert.Len(t, rows[0].Fields, 7)
	assert.Equal(t, 6, rows[1].Line)
	assert.Equal(t, "Happy, New", rows[1].Fields[1])
}

func TestEventRoundTrip(t *testing.T) {
	lines := []string{
		"2025-12-25,Merry,Christmas,tree.bmp,GREEN,0,23",
		"2026-01-01,\"Happy, New\",Year,fireworks.bmp,YELLOW",
		"2026-03-08,Feliz dia,Mamá,flower.bmp,LILAC,8,20",
	}
	for _, line := range lines {
		ev, err := ParseEventLine(line)
		require.NoError(t, err)

		again, err := ParseEventLine(EncodeLine(FormatEvent(ev)))
		require.NoError(t, err)
		assert.Equal(t, ev, again)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	it, err := ParseScheduleLine("Homework,0,4210,16,15,17,45,books.bmp,0")
	require.NoError(t, err)

	line := EncodeLine(FormatSchedule(it))
	assert.Equal(t, "Homework,0,0124,16,15,17,45,books.bmp,0", line)

	again, err := ParseScheduleLine(line)
	require.NoError(t, err)
	assert.Equal(t, it, again)
}

func TestEncodeLine_LeadingHash(t *testing.T) {
	it, err := ParseScheduleLine("Homework,1,0,8,0,9,0,a.bmp,0")
	require.NoError(t, err)
	it.Name = `#1 "Priority"`

	line := EncodeLine(FormatSchedule(it))
	assert.Equal(t, `"#1 ""Priority""",1,0,8,0,9,0,a.bmp,0`, line)

	again, err := ParseScheduleLine(line)
	require.NoError(t, err)
	assert.Equal(t, it, again)

	assert.Equal(t, `"#"`, EncodeLine([]string{"#"}))
	assert.Equal(t, "a,#b", EncodeLine([]string{"a", "#b"}))
}

func TestReadRows_UnbalancedQuote(t *testing.T) {
	body := strings.Join([]string{
		"A,1,0,8,0,9,0,a.bmp,0",
		`"B,1,0,8,0,9,0,b.bmp,0`,
		"C,1,0,8,0,9,0,c.bmp,0",
		`D,1,"0,8,0,9,0,d.bmp,0`,
		"E,1,0,8,0,9,0,e.bmp,0",
		"",
	}, "\n")

	rows, err := ReadRows(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, 2, rows[1].Line)
	assert.Len(t, rows[1].Fields, 1)
	assert.Equal(t, 3, rows[2].Line)
	assert.Equal(t, "C", rows[2].Fields[0])
	assert.Len(t, rows[3].Fields, 3)
	assert.Equal(t, 5, rows[4].Line)
	assert.Equal(t, "E", rows[4].Fields[0])
}
