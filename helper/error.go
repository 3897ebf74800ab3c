package helper

import (
	"errors"
	"strings"
)

// Error wraps an original error with the chain of operations it passed through.
// The newest operation is first in Trace.
type Error struct {
	Original error
	Trace    []string
}

// NewError wraps err with the given operation name.
// If err already is an *Error the operation is prepended to its trace.
func NewError(trace string, original error) error {
	if original == nil {
		original = errors.New("unknown error")
	}

	var e *Error
	if errors.As(original, &e) {
		return &Error{
			Original: e.Original,
			Trace:    append([]string{trace}, e.Trace...),
		}
	}

	return &Error{
		Original: original,
		Trace:    []string{trace},
	}
}

func (e *Error) Error() string {
	return strings.Join(e.Trace, ": ") + ": " + e.Original.Error()
}

// Unwrap returns the original error so errors.Is and errors.As see through the trace.
func (e *Error) Unwrap() error {
	return e.Original
}
