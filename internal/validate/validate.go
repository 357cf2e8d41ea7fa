// Package validate checks parsed records against the value domains the
// display firmware accepts.
package validate

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"pantallita/internal/model"
)

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

func instance() *validator.Validate {
	engineOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their column name in the CSV files.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("csv"); name != "" {
				return name
			}
			return f.Name
		})

		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("bmpname", func(fl validator.FieldLevel) bool {
			return IsImageName(fl.Field().String())
		})

		engine = v
	})
	return engine
}

// IsImageName reports whether s is a bare .bmp file name that resolves
// inside its image directory.
func IsImageName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, `/\`) || path.Base(s) != s {
		return false
	}
	return strings.EqualFold(filepath.Ext(s), ".bmp") && len(s) > len(".bmp")
}

// Event validates an ephemeral event. It returns a *model.ValidationError
// for the first offending field.
func Event(ev model.EventRecord) error {
	if err := check(ev); err != nil {
		return err
	}
	if ev.HasHours && ev.StartHour > ev.EndHour {
		return &model.ValidationError{
			Field: "start_hour",
			Msg:   fmt.Sprintf("start hour %d is after end hour %d", ev.StartHour, ev.EndHour),
		}
	}
	return nil
}

// Schedule validates a schedule item. The start instant may equal but not
// follow the end instant; both lie on the same day.
func Schedule(it model.ScheduleItem) error {
	if err := check(it); err != nil {
		return err
	}
	if it.Start() > it.End() {
		return &model.ValidationError{
			Field: "start_hour",
			Msg: fmt.Sprintf("start %d:%02d is after end %d:%02d",
				it.StartHour, it.StartMin, it.EndHour, it.EndMin),
		}
	}
	return nil
}

func check(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	return &model.ValidationError{Field: fe.Field(), Msg: message(fe)}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "bmpname":
		return fmt.Sprintf("%q is not a .bmp file name", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v is not one of %s", fe.Value(), colorList())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q is longer than %s characters", fe.Value(), fe.Param())
		}
		return fmt.Sprintf("%v is above %s", fe.Value(), fe.Param())
	case "min":
		return fmt.Sprintf("%v is below %s", fe.Value(), fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}

func colorList() string {
	names := make([]string, len(model.Colors))
	for i, c := range model.Colors {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
