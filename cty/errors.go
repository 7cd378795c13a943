package cty

import (
	"fmt"
)

// IOError reports a failure opening or reading a CTY source.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("read cty data: %v", e.Err)
	}
	return fmt.Sprintf("read cty data %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// MalformedRecordError reports a line that cannot be interpreted as a record,
// e.g. a primary record with too few fields.
type MalformedRecordError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: malformed record (%s): %q", e.Line, e.Reason, e.Text)
}

// FieldFormatError reports a primary record field that does not parse as its
// numeric type.
type FieldFormatError struct {
	Line  int
	Field string
	Value string
	Text  string
	Err   error
}

func (e *FieldFormatError) Error() string {
	return fmt.Sprintf("line %d: field %s: invalid value %q: %q", e.Line, e.Field, e.Value, e.Text)
}

func (e *FieldFormatError) Unwrap() error { return e.Err }

// OverrideFormatError reports an alias override whose captured value does not
// parse.
type OverrideFormatError struct {
	Line  int
	Kind  OverrideKind
	Token string
	Err   error
}

func (e *OverrideFormatError) Error() string {
	return fmt.Sprintf("line %d: %s override in %q: %v", e.Line, e.Kind, e.Token, e.Err)
}

func (e *OverrideFormatError) Unwrap() error { return e.Err }

// InvalidTimezoneError reports a UTC offset that cannot be expressed as a
// fixed zone (a magnitude of a full day or more).
type InvalidTimezoneError struct {
	Line   int
	Token  string
	Offset float64
}

func (e *InvalidTimezoneError) Error() string {
	return fmt.Sprintf("line %d: utc offset %g hours out of range in %q", e.Line, e.Offset, e.Token)
}
