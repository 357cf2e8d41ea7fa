package model

import (
	"errors"
	"fmt"
)

// Position is where in the repository a problem was found. Line is 1-based;
// zero means the problem concerns the whole file.
type Position struct {
	File string
	Line int
}

func (p Position) prefix() string {
	switch {
	case p.File == "":
		return ""
	case p.Line == 0:
		return p.File + ": "
	default:
		return fmt.Sprintf("%s:%d: ", p.File, p.Line)
	}
}

// FormatError reports a malformed row: wrong field count or a field that
// does not parse as its type.
type FormatError struct {
	Position
	Field string
	Msg   string
	Err   error
}

func (e *FormatError) Error() string {
	s := e.prefix() + "format: "
	if e.Field != "" {
		s += e.Field + ": "
	}
	s += e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

// ValidationError reports a parsed value outside its allowed domain.
type ValidationError struct {
	Position
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.prefix() + "invalid " + e.Field + ": " + e.Msg
}

// NotFoundError reports a referenced image or schedule file that does not
// exist in the repository.
type NotFoundError struct {
	Position
	Field string
	Path  string
}

func (e *NotFoundError) Error() string {
	s := e.prefix()
	if e.Field != "" {
		s += e.Field + ": "
	}
	return s + "not found: " + e.Path
}

// At attaches a file position to the typed errors of this package. Other
// errors are wrapped with the position as text.
func At(err error, file string, line int) error {
	if err == nil {
		return nil
	}
	pos := Position{File: file, Line: line}

	var fe *FormatError
	if errors.As(err, &fe) {
		cp := *fe
		cp.Position = pos
		return &cp
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		cp := *ve
		cp.Position = pos
		return &cp
	}
	var ne *NotFoundError
	if errors.As(err, &ne) {
		cp := *ne
		cp.Position = pos
		return &cp
	}
	return fmt.Errorf("%s%w", pos.prefix(), err)
}

// IsFormat, IsValidation and IsNotFound classify errors returned by the
// parser, the validator and the loader.
func IsFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
