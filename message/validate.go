package message

import (
	"fmt"
	"strings"
)

// MaxLength is the classic CAN payload limit in bytes.
const MaxLength = 8

// Issue is one problem found in a template.
type Issue struct {
	Signal  string `json:"signal,omitempty"`
	Message string `json:"message"`
}

func (i Issue) Error() string {
	return i.Message
}

// Validate checks the template's name, length and signal layout. Signals must
// end inside the payload and must not overlap each other.
func Validate(t Template) []Issue {
	var out []Issue
	if strings.TrimSpace(t.Name) == "" {
		out = append(out, Issue{Message: "message name is required"})
	}
	if t.Length < 1 || t.Length > MaxLength {
		out = append(out, Issue{Message: fmt.Sprintf("length must be 1..%d bytes, got %d", MaxLength, t.Length)})
	}
	bits := t.Length * 8

	names := make(map[string]bool, len(t.Signals))
	for i, s := range t.Signals {
		if strings.TrimSpace(s.Name) == "" {
			out = append(out, Issue{Message: fmt.Sprintf("signal %d has no name", i)})
		} else if names[s.Name] {
			out = append(out, Issue{Signal: s.Name, Message: fmt.Sprintf("duplicate signal name %q", s.Name)})
		}
		names[s.Name] = true

		if s.Length < 1 {
			out = append(out, Issue{Signal: s.Name, Message: fmt.Sprintf("signal %q has zero length", s.Name)})
			continue
		}
		if end := s.StartBit + s.Length - 1; end >= bits {
			out = append(out, Issue{Signal: s.Name, Message: fmt.Sprintf("signal %q ends at bit %d, past the %d-bit payload", s.Name, end, bits)})
		}
		if s.Min > s.Max {
			out = append(out, Issue{Signal: s.Name, Message: fmt.Sprintf("signal %q minimum %g is above maximum %g", s.Name, s.Min, s.Max)})
		}
		for j := 0; j < i; j++ {
			o := t.Signals[j]
			if o.Length > 0 && s.StartBit < o.StartBit+o.Length && o.StartBit < s.StartBit+s.Length {
				out = append(out, Issue{Signal: s.Name, Message: fmt.Sprintf("signal %q overlaps %q", s.Name, o.Name)})
			}
		}
	}
	return out
}

// NextStartBit returns the first bit after every existing signal.
func NextStartBit(t Template) uint {
	var next uint
	for _, s := range t.Signals {
		if end := s.StartBit + s.Length; end > next {
			next = end
		}
	}
	return next
}
