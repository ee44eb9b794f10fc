// Package actions implements the spreadsheet action protocol the assistant
// embeds in its replies: a marker-delimited JSON block describing a batch of
// writes, formulas and formatting changes.
package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Type discriminates the action variants.
type Type string

const (
	// TypeWrite writes literal values cell by cell.
	TypeWrite Type = "write"
	// TypeFormula assigns one formula to every cell of a range.
	TypeFormula Type = "formula"
	// TypeFormat changes the formatting of a range.
	TypeFormat Type = "format"
)

var (
	// ErrUnknownType is returned when an action carries an unsupported type.
	ErrUnknownType = errors.New("unknown action type")
	// ErrMissingField is returned when a required field of a variant is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidValue is returned when a cell value is not a scalar.
	ErrInvalidValue = errors.New("cell value must be a string, number, boolean or null")
)

// Action is one edit of a batch. The concrete types are *Write, *Formula and *Format.
type Action interface {
	Kind() Type
	Target() string
}

// Write writes values[r][c] into the cell at (start row + r, start col + c).
type Write struct {
	Range  string    `json:"range"`
	Values [][]Value `json:"values"`
}

// Formula sets the same formula string on every cell of Range.
type Formula struct {
	Range   string `json:"range"`
	Formula string `json:"formula"`
}

// Format applies the set fields of Format to Range and leaves the others untouched.
type Format struct {
	Range  string        `json:"range"`
	Format FormatOptions `json:"format"`
}

// FormatOptions lists the formatting properties an action may change.
// A nil field means "leave as is".
type FormatOptions struct {
	Bold                *bool    `json:"bold,omitempty"`
	Italic              *bool    `json:"italic,omitempty"`
	Fill                *string  `json:"fill,omitempty"`
	FontColor           *string  `json:"fontColor,omitempty"`
	FontSize            *float64 `json:"fontSize,omitempty"`
	NumberFormat        *string  `json:"numberFormat,omitempty"`
	HorizontalAlignment *string  `json:"horizontalAlignment,omitempty"`
	Borders             *bool    `json:"borders,omitempty"`
}

// Kind returns TypeWrite.
func (w *Write) Kind() Type { return TypeWrite }

// Target returns the range reference as written by the model.
func (w *Write) Target() string { return w.Range }

// Kind returns TypeFormula.
func (f *Formula) Kind() Type { return TypeFormula }

// Target returns the range reference as written by the model.
func (f *Formula) Target() string { return f.Range }

// Kind returns TypeFormat.
func (f *Format) Kind() Type { return TypeFormat }

// Target returns the range reference as written by the model.
func (f *Format) Target() string { return f.Range }

// Rectangular reports whether every row of Values has the same length.
func (w *Write) Rectangular() bool {
	for _, row := range w.Values {
		if len(row) != len(w.Values[0]) {
			return false
		}
	}
	return true
}

// Shape returns the number of rows and the length of the longest row.
func (w *Write) Shape() (rows, cols int) {
	for _, row := range w.Values {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(w.Values), cols
}

// Block is the batch of actions carried by one assistant reply.
type Block struct {
	Actions []Action `json:"actions"`
}

type rawBlock struct {
	Actions []json.RawMessage `json:"actions"`
}

type rawAction struct {
	Type    Type           `json:"type"`
	Range   string         `json:"range"`
	Values  [][]Value      `json:"values"`
	Formula string         `json:"formula"`
	Format  *FormatOptions `json:"format"`
}

// UnmarshalJSON decodes and validates a block. Unknown action types and
// variants missing their required fields are rejected.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Actions == nil {
		return fmt.Errorf("%w: actions", ErrMissingField)
	}

	out := make([]Action, 0, len(raw.Actions))
	for i, msg := range raw.Actions {
		a, err := decodeAction(msg)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	b.Actions = out
	return nil
}

func decodeAction(msg json.RawMessage) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: action is null", ErrMissingField)
	}

	var a rawAction
	if err := json.Unmarshal(msg, &a); err != nil {
		return nil, err
	}
	if a.Range == "" {
		return nil, fmt.Errorf("%w: range", ErrMissingField)
	}

	switch a.Type {
	case TypeWrite:
		if isAbsent(fields["values"]) {
			return nil, fmt.Errorf("%w: values", ErrMissingField)
		}
		return &Write{Range: a.Range, Values: a.Values}, nil
	case TypeFormula:
		if a.Formula == "" {
			return nil, fmt.Errorf("%w: formula", ErrMissingField)
		}
		return &Formula{Range: a.Range, Formula: a.Formula}, nil
	case TypeFormat:
		if a.Format == nil {
			return nil, fmt.Errorf("%w: format", ErrMissingField)
		}
		return &Format{Range: a.Range, Format: *a.Format}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, a.Type)
	}
}

func isAbsent(raw json.RawMessage) bool {
	return raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// MarshalJSON encodes the block with the type discriminator on each action.
func (b Block) MarshalJSON() ([]byte, error) {
	out := rawBlock{Actions: make([]json.RawMessage, 0, len(b.Actions))}
	for i, a := range b.Actions {
		data, err := marshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out.Actions = append(out.Actions, data)
	}
	return json.Marshal(out)
}

func marshalAction(a Action) ([]byte, error) {
	switch v := a.(type) {
	case *Write:
		return json.Marshal(struct {
			Type Type `json:"type"`
			*Write
		}{TypeWrite, v})
	case *Formula:
		return json.Marshal(struct {
			Type Type `json:"type"`
			*Formula
		}{TypeFormula, v})
	case *Format:
		return json.Marshal(struct {
			Type Type `json:"type"`
			*Format
		}{TypeFormat, v})
	default:
		return nil, fmt.Errorf("%w %T", ErrUnknownType, a)
	}
}

// Value is a single cell value: a string, a float64, a bool or nil.
type Value struct {
	v any
}

// String returns a string cell value.
func String(s string) Value { return Value{v: s} }

// Number returns a numeric cell value.
func Number(n float64) Value { return Value{v: n} }

// Bool returns a boolean cell value.
func Bool(b bool) Value { return Value{v: b} }

// Null returns an empty cell value.
func Null() Value { return Value{} }

// Interface returns the underlying Go value.
func (v Value) Interface() any { return v.v }

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool { return v.v == nil }

// String renders the value the way a cell would display it.
func (v Value) String() string {
	switch x := v.v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// UnmarshalJSON accepts scalars only.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	switch x.(type) {
	case nil, string, float64, bool:
		v.v = x
		return nil
	default:
		return fmt.Errorf("%w, got %s", ErrInvalidValue, bytes.TrimSpace(data))
	}
}

// MarshalJSON encodes the underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}
