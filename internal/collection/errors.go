package collection

import (
	"fmt"
	"strings"
)

// FeedFailure is one feed's error from a batch operation.
type FeedFailure struct {
	URI string
	Err error
}

func (f FeedFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.URI, f.Err)
}

func (f FeedFailure) Unwrap() error {
	return f.Err
}

// BatchError reports every feed that failed during AddMany or Update.
// The remaining feeds were still processed.
type BatchError struct {
	Op       string
	Failures []FeedFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %d feed(s) failed: %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes each failure so errors.Is and errors.As see individual causes.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

func (e *BatchError) add(uri string, err error) {
	e.Failures = append(e.Failures, FeedFailure{URI: uri, Err: err})
}

func (e *BatchError) orNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
