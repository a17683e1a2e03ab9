package statement

import (
	"errors"
	"fmt"

	"github.com/cleared-dev/stmtimport/internal/model"
)

var (
	// ErrDialect: the record width matches no known column layout.
	ErrDialect = errors.New("unresolvable dialect")
	// ErrFieldParse: a field is missing or could not be normalized.
	ErrFieldParse = errors.New("field parse error")
	// ErrMalformed: the record splitter could not tokenize a line.
	ErrMalformed = errors.New("malformed record")
	// ErrWidth: a data record deviates from the width of the resolved layout.
	ErrWidth = errors.New("record width does not match dialect")
	// ErrMissing: the layout maps a mandatory field past the end of the record.
	ErrMissing = errors.New("missing column")
)

// DialectError reports the record that no layout could be resolved from.
type DialectError struct {
	Line  int
	Width int
}

func (e *DialectError) Error() string {
	if e.Width < 0 {
		return fmt.Sprintf("line %d: %s: record is malformed", e.Line, ErrDialect)
	}
	return fmt.Sprintf("line %d: %s: %d fields", e.Line, ErrDialect, e.Width)
}

func (e *DialectError) Is(target error) bool {
	return target == ErrDialect
}

// FieldError describes one field of one row that failed validation.
type FieldError struct {
	Field model.Field
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrFieldParse, e.Err}
}
