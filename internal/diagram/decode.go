package diagram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// header carries the request-level fields the transport requires.
type header struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// Decode parses a diagram JSON document. Shape problems are reported as a
// *BadInputError; graph-integrity problems are left for validation.
func Decode(r io.Reader) (*Diagram, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &BadInputError{Msg: "failed to read body", Err: err}
	}
	return DecodeBytes(raw)
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(raw []byte) (*Diagram, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &BadInputError{Msg: "body is not a JSON object", Err: err}
	}
	if doc == nil {
		return nil, &BadInputError{Msg: "body is not a JSON object"}
	}
	for _, field := range []string{"nodes", "edges"} {
		if !isArray(doc[field]) {
			return nil, &BadInputError{Field: field, Msg: "must be an array"}
		}
	}

	var d Diagram
	if err := json.Unmarshal(raw, &d); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, &BadInputError{Field: typeErr.Field, Msg: fmt.Sprintf("expected %s", typeErr.Type), Err: err}
		}
		return nil, &BadInputError{Msg: "malformed diagram", Err: err}
	}

	h := header{ID: strings.TrimSpace(d.ID), Name: strings.TrimSpace(d.Name)}
	if err := validate.Struct(h); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return nil, &BadInputError{Field: ve[0].Field(), Msg: "is required"}
		}
		return nil, &BadInputError{Msg: "invalid diagram header", Err: err}
	}
	return &d, nil
}

// CheckShape is the engine-side shape check. It accepts anonymous diagrams
// built in code; only the node and edge lists are mandatory.
func CheckShape(d *Diagram) error {
	if d == nil {
		return &BadInputError{Msg: "diagram is nil"}
	}
	if d.Nodes == nil {
		return &BadInputError{Field: "nodes", Msg: "must be an array"}
	}
	if d.Edges == nil {
		return &BadInputError{Field: "edges", Msg: "must be an array"}
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
