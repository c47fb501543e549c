package analysis

import (
	"errors"
	"fmt"
)

// ErrAnalysisFailed marks an internal failure of a heuristic engine.
var ErrAnalysisFailed = errors.New("analysis failed")

// Error reports a recovered engine failure for one operation.
// Wraps ErrAnalysisFailed for errors.Is() compatibility.
type Error struct {
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", ErrAnalysisFailed.Error(), e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAnalysisFailed, e.Err}
	}
	return []error{ErrAnalysisFailed}
}

// recovered converts a recovered panic value into an *Error.
func recovered(op string, r any) *Error {
	if err, ok := r.(error); ok {
		return &Error{Op: op, Reason: err.Error(), Err: err}
	}
	return &Error{Op: op, Reason: fmt.Sprint(r)}
}
