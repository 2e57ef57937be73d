package session

import (
	"fmt"
	"strings"
)

// FieldID identifies one of the two location inputs.
type FieldID string

const (
	FieldStart FieldID = "start"
	FieldEnd   FieldID = "end"
)

// Fields lists the inputs in display order.
var Fields = [2]FieldID{FieldStart, FieldEnd}

// ParseField accepts "start" or "end", case-insensitively.
func ParseField(s string) (FieldID, error) {
	switch f := FieldID(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldStart, FieldEnd:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
}

// Valid reports whether f is a known field.
func (f FieldID) Valid() bool {
	return f == FieldStart || f == FieldEnd
}

func (f FieldID) index() int {
	if f == FieldEnd {
		return 1
	}
	return 0
}
