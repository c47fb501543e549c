package diagram

import (
	"errors"
	"fmt"
)

// ErrBadInput marks input the analysis engine cannot look at at all: not a
// diagram object, missing node or edge arrays, missing id or name.
var ErrBadInput = errors.New("bad input")

// BadInputError describes a single input-shape failure.
// Wraps ErrBadInput for errors.Is() compatibility.
type BadInputError struct {
	Field string // offending field, empty for whole-document problems
	Msg   string
	Err   error // optional underlying decode error
}

func (e *BadInputError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" {
		msg = "malformed diagram"
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrBadInput.Error(), e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", ErrBadInput.Error(), msg)
}

func (e *BadInputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBadInput, e.Err}
	}
	return []error{ErrBadInput}
}
