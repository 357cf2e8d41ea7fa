// Package csvrow reads the comma-separated rows of the content repository
// and turns them into event and schedule records.
//
//	ephemeral_events.csv: YYYY-MM-DD,TopLine,BottomLine,Image,Color[,StartHour,EndHour]
//	schedule files:       name,enabled,days,start_hour,start_min,end_hour,end_min,image,progressbar
//
// Parsing only checks shape and types. Value domains (lengths, colors,
// ranges) belong to package validate.
package csvrow

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"pantallita/internal/model"
)

// Accepted field counts.
const (
	EventFields         = 5
	EventFieldsWithTime = 7
	ScheduleFields      = 9
)

// Row is one data row of a file with its 1-based line number. Err is set
// when the line itself could not be split into fields.
type Row struct {
	Line   int
	Fields []string
	Err    error
}

// maxLine bounds a single physical line.
const maxLine = 1 << 20

// ReadRows splits r into data rows. Blank lines and lines starting with '#'
// are skipped, fields are whitespace-trimmed and rows may have any number
// of fields; the record parsers decide what is acceptable.
//
// Every physical line is one record. A quoted field never continues onto
// the next line, so an unbalanced quote spoils only its own row and
// reading picks up again on the following line. The returned error is
// reserved for read failures.
func ReadRows(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)

	rows := make([]Row, 0)
	for n := 1; sc.Scan(); n++ {
		text := sc.Text()
		if strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := newReader(strings.NewReader(text)).Read()
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return rows, err
			}
			rows = append(rows, Row{Line: n, Err: &model.FormatError{
				Position: model.Position{Line: n},
				Msg:      "malformed csv",
				Err:      pe.Err,
			}})
			continue
		}

		fields := trimAll(rec)
		if blank(fields) {
			continue
		}
		rows = append(rows, Row{Line: n, Fields: fields})
	}
	if err := sc.Err(); err != nil {
		return rows, err
	}
	return rows, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// blank reports a whitespace-only line, which csv.Reader does not skip.
func blank(fields []string) bool {
	return len(fields) == 1 && fields[0] == ""
}

// splitLine parses a single text line into fields.
func splitLine(line string) ([]string, error) {
	rows, err := ReadRows(strings.NewReader(line))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &model.FormatError{Msg: "empty line"}
	}
	if rows[0].Err != nil {
		return nil, rows[0].Err
	}
	return rows[0].Fields, nil
}

// ParseEventLine parses a single ephemeral_events.csv line.
func ParseEventLine(line string) (model.EventRecord, error) {
	fields, err := splitLine(line)
	if err != nil {
		return model.EventRecord{}, err
	}
	return ParseEvent(fields)
}

// ParseScheduleLine parses a single schedule file line.
func ParseScheduleLine(line string) (model.ScheduleItem, error) {
	fields, err := splitLine(line)
	if err != nil {
		return model.ScheduleItem{}, err
	}
	return ParseSchedule(fields)
}

// ParseEvent converts event fields into a record. It accepts exactly 5 or
// 7 fields.
func ParseEvent(fields []string) (model.EventRecord, error) {
	var ev model.EventRecord

	if n := len(fields); n != EventFields && n != EventFieldsWithTime {
		return ev, &model.FormatError{Msg: "expected 5 or 7 fields, got " + strconv.Itoa(n)}
	}

	date, err := time.Parse(model.DateLayout, fields[0])
	if err != nil {
		return ev, &model.FormatError{Field: "date", Msg: "expected YYYY-MM-DD", Err: err}
	}

	ev.Date = date
	ev.TopLine = fields[1]
	ev.BottomLine = fields[2]
	ev.Image = fields[3]
	ev.Color = model.Color(strings.ToUpper(fields[4]))

	if len(fields) == EventFieldsWithTime {
		if ev.StartHour, err = parseInt("start_hour", fields[5]); err != nil {
			return model.EventRecord{}, err
		}
		if ev.EndHour, err = parseInt("end_hour", fields[6]); err != nil {
			return model.EventRecord{}, err
		}
		ev.HasHours = true
	}

	return ev, nil
}

// ParseSchedule converts schedule fields into an item. It accepts exactly
// 9 fields.
func ParseSchedule(fields []string) (model.ScheduleItem, error) {
	var it model.ScheduleItem

	if n := len(fields); n != ScheduleFields {
		return it, &model.FormatError{Msg: "expected 9 fields, got " + strconv.Itoa(n)}
	}

	var err error
	it.Name = fields[0]
	if it.Enabled, err = parseBool("enabled", fields[1]); err != nil {
		return model.ScheduleItem{}, err
	}
	if it.Days, err = ParseDays(fields[2]); err != nil {
		return model.ScheduleItem{}, err
	}
	if it.StartHour, err = parseInt("start_hour", fields[3]); err != nil {
		return model.ScheduleItem{}, err
	}
	if it.StartMin, err = parseInt("start_min", fields[4]); err != nil {
		return model.ScheduleItem{}, err
	}
	if it.EndHour, err = parseInt("end_hour", fields[5]); err != nil {
		return model.ScheduleItem{}, err
	}
	if it.EndMin, err = parseInt("end_min", fields[6]); err != nil {
		return model.ScheduleItem{}, err
	}
	it.Image = fields[7]
	if it.Progressbar, err = parseBool("progressbar", fields[8]); err != nil {
		return model.ScheduleItem{}, err
	}

	return it, nil
}

// ParseDays parses a days field such as "01234". Digits may appear in any
// order. A repeated digit is a validation error, anything but 0-6 a format
// error. The empty string yields the empty set.
func ParseDays(s string) (model.DaySet, error) {
	var set model.DaySet
	for _, r := range s {
		if r < '0' || r > '6' {
			return 0, &model.FormatError{Field: "days", Msg: "expected digits 0-6, found " + strconv.QuoteRune(r)}
		}
		d := int(r - '0')
		if set.Has(d) {
			return 0, &model.ValidationError{Field: "days", Msg: "day " + string(r) + " listed twice"}
		}
		set |= model.NewDaySet(d)
	}
	return set, nil
}

func parseInt(field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &model.FormatError{Field: field, Msg: "expected an integer, got " + strconv.Quote(s)}
	}
	return n, nil
}

func parseBool(field, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &model.FormatError{Field: field, Msg: "expected 1 or 0, got " + strconv.Quote(s)}
	}
	return b, nil
}

// FormatEvent renders an event back into its field form. Events without an
// hour window produce 5 fields.
func FormatEvent(ev model.EventRecord) []string {
	fields := []string{
		ev.DateString(),
		ev.TopLine,
		ev.BottomLine,
		ev.Image,
		string(ev.Color),
	}
	if ev.HasHours {
		fields = append(fields, strconv.Itoa(ev.StartHour), strconv.Itoa(ev.EndHour))
	}
	return fields
}

// FormatSchedule renders a schedule item back into its 9 fields. Booleans
// are written as 1/0 the way the display firmware expects.
func FormatSchedule(it model.ScheduleItem) []string {
	return []string{
		it.Name,
		boolField(it.Enabled),
		it.Days.String(),
		strconv.Itoa(it.StartHour),
		strconv.Itoa(it.StartMin),
		strconv.Itoa(it.EndHour),
		strconv.Itoa(it.EndMin),
		it.Image,
		boolField(it.Progressbar),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// EncodeLine joins fields into one CSV line without the trailing newline,
// quoting only where needed. A first field starting with '#' is always
// quoted, otherwise the line would read back as a comment.
func EncodeLine(fields []string) string {
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "#") {
		return encode(fields)
	}
	first := `"` + strings.ReplaceAll(fields[0], `"`, `""`) + `"`
	if len(fields) == 1 {
		return first
	}
	return first + "," + encode(fields[1:])
}

func encode(fields []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Write to a bytes.Buffer cannot fail.
	_ = w.Write(fields)
	w.Flush()
	return strings.TrimSuffix(buf.String(), "\n")
}
