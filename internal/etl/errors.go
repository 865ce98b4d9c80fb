package etl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for inputs no row reader understands
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrInvalidEncoding is returned when a text field is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid UTF-8 in field")
)

// ParseError aborts a run whose input cannot be read
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError aborts a run whose artifact cannot be persisted
type WriteError struct {
	File string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.File, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
