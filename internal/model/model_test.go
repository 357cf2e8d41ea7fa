package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaySet(t *testing.T) {
	s := NewDaySet(4, 0, 2, 9)

	assert.Equal(t, "024", s.String())
	assert.Equal(t, "Mon,Wed,Fri", s.Names())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has(2))
	assert.False(t, s.Has(9))
	assert.Equal(t, NewDaySet(0), s.Intersect(NewDaySet(0, 1)))
	assert.Equal(t, "0123456", AllDays.String())
	assert.True(t, DaySet(0).Empty())
}

func TestDayIndex(t *testing.T) {
	assert.Equal(t, 0, DayIndex(time.Monday))
	assert.Equal(t, 6, DayIndex(time.Sunday))
	assert.Equal(t, 5, DayIndex(time.Saturday))
}

func TestErrorsAt(t *testing.T) {
	err := At(&FormatError{Field: "start_hour", Msg: "not an integer"}, "default_schedule.csv", 4)
	assert.EqualError(t, err, "default_schedule.csv:4: format: start_hour: not an integer")
	assert.True(t, IsFormat(err))

	err = At(&ValidationError{Field: "color", Msg: "unknown color"}, "ephemeral_events.csv", 2)
	assert.EqualError(t, err, "ephemeral_events.csv:2: invalid color: unknown color")
	assert.True(t, IsValidation(err))

	err = At(&NotFoundError{Path: "schedules/default_schedule.csv"}, "schedules", 0)
	assert.EqualError(t, err, "schedules: not found: schedules/default_schedule.csv")
	assert.True(t, IsNotFound(err))

	plain := At(errors.New("read failed"), "ephemeral_events.csv", 0)
	assert.EqualError(t, plain, "ephemeral_events.csv: read failed")
	assert.Nil(t, At(nil, "x", 1))
}
