// Package ot implements the operational transformation engine: the
// Operation sum type, the pairwise Transform rules, the bounded Buffer of
// recently accepted operations, and Engine.ProcessOperation which ties
// them together.
package ot

import "unicode/utf16"

// Kind discriminates the Operation sum type.
type Kind string

const (
	Insert Kind = "insert"
	Delete Kind = "delete"
	Noop   Kind = "noop"
)

// Operation is a tagged value: insert, delete, or noop. Position and
// length are counted in UTF-16 code units so that the backend agrees
// with textarea-style browser clients.
type Operation struct {
	Kind        Kind   `json:"type"`
	Position    int    `json:"position"`
	Text        string `json:"text,omitempty"`
	Length      int    `json:"length,omitempty"`
	BaseVersion uint64 `json:"baseVersion"`
}

// NewInsert builds an insert operation.
func NewInsert(position int, text string, baseVersion uint64) Operation {
	return Operation{Kind: Insert, Position: position, Text: text, BaseVersion: baseVersion}
}

// NewDelete builds a delete operation.
func NewDelete(position, length int, baseVersion uint64) Operation {
	return Operation{Kind: Delete, Position: position, Length: length, BaseVersion: baseVersion}
}

// NewNoop builds the noop produced only by transformation; clients never
// send it.
func NewNoop() Operation {
	return Operation{Kind: Noop}
}

// IsNoop reports whether op is the noop operation.
func (op Operation) IsNoop() bool { return op.Kind == Noop }

// Validate checks the acceptance constraints: non-empty insert text,
// positive delete length, a known kind. It does not clamp; clamping
// happens in Apply.
func (op Operation) Validate() error {
	switch op.Kind {
	case Insert:
		if op.Text == "" {
			return errEmptyInsertText
		}
	case Delete:
		if op.Length < 1 {
			return errNonPositiveDeleteLength
		}
	case Noop:
	default:
		return errUnknownOperationKind
	}
	return nil
}

// Apply materializes op on content, clamping out-of-range positions and
// lengths. content and the returned string are UTF-8, but offsets are
// interpreted as UTF-16 code unit counts.
func Apply(content string, op Operation) string {
	if op.IsNoop() {
		return content
	}

	units := utf16.Encode([]rune(content))
	pos := clamp(op.Position, 0, len(units))

	switch op.Kind {
	case Insert:
		ins := utf16.Encode([]rune(op.Text))
		out := make([]uint16, 0, len(units)+len(ins))
		out = append(out, units[:pos]...)
		out = append(out, ins...)
		out = append(out, units[pos:]...)
		return string(utf16.Decode(out))
	case Delete:
		end := clamp(pos+op.Length, pos, len(units))
		out := make([]uint16, 0, len(units)-(end-pos))
		out = append(out, units[:pos]...)
		out = append(out, units[end:]...)
		return string(utf16.Decode(out))
	default:
		return content
	}
}

// Len returns the UTF-16 code unit length of s, the unit convention this
// package operates in.
func Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
