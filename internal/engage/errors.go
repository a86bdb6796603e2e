// internal/engage/errors.go
package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrLoginFailed indicates the session never got past the login form. No
// profile visits happen after this error; cleanup still runs.
var ErrLoginFailed = errors.New("login failed")

// ErrorKind classifies a failed interaction step so the caller can decide
// between skip-and-continue and abort, instead of one broad catch-all.
type ErrorKind int

const (
	// KindFault is an unexpected failure. The run aborts.
	KindFault ErrorKind = iota
	// KindElementMissing means the element never showed up within the wait
	// ceiling. The current item is skipped.
	KindElementMissing
	// KindNavigation means the page itself failed to load. The current
	// profile is skipped.
	KindNavigation
)

func (k ErrorKind) String() string {
	switch k {
	case KindElementMissing:
		return "element_missing"
	case KindNavigation:
		return "navigation"
	default:
		return "fault"
	}
}

// StepError wraps a failure of one named interaction step with its kind.
type StepError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// classify maps a raw driver error onto the step taxonomy. Element-wait
// timeouts surface from the driver as context.DeadlineExceeded; page-load
// failures carry chromium's net:: error strings.
func classify(step string, err error) *StepError {
	kind := KindFault
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindFault
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindElementMissing
	case strings.Contains(err.Error(), "net::"),
		strings.Contains(err.Error(), "page load error"):
		kind = KindNavigation
	}
	return &StepError{Kind: kind, Step: step, Err: err}
}

// recoverable reports whether the engagement loop may continue past err.
func recoverable(err error) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind != KindFault
	}
	return false
}
