package serial

import (
	"errors"
	"fmt"
)

var (
	ErrCycle            = errors.New("reference cycle in document")
	ErrTypeMismatch     = errors.New("value does not match field type")
	ErrUnregistered     = errors.New("type is not registered")
	ErrUnsupportedType  = errors.New("unsupported type")
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrInvalidTarget    = errors.New("decode target must be a non-nil pointer")
	ErrMissingHeader    = errors.New("missing type header line")
	ErrNoCache          = errors.New("asset field without an asset cache")
)

// ParseError reports malformed input. Path is the dotted location of the
// offending value inside the document; Offset is the byte offset for syntax
// errors and zero otherwise.
type ParseError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Offset > 0:
		return fmt.Sprintf("parse %s (offset %d): %v", e.Path, e.Offset, e.Err)
	case e.Path != "":
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	case e.Offset > 0:
		return fmt.Sprintf("parse error at offset %d: %v", e.Offset, e.Err)
	default:
		return fmt.Sprintf("parse error: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

func mismatch(path, format string, args ...any) error {
	return &ParseError{Path: path, Err: fmt.Errorf("%w: "+format, append([]any{ErrTypeMismatch}, args...)...)}
}
