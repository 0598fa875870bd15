package layout

import "fmt"

// ViolationKind classifies a layout problem.
type ViolationKind string

const (
	ExceedsLimit          ViolationKind = "exceeds_limit"
	IntraFieldOverlap     ViolationKind = "intra_field_overlap"
	WidthMismatch         ViolationKind = "width_mismatch"
	CrossFieldConflict    ViolationKind = "cross_field_conflict"
	DuplicateFunctionCode ViolationKind = "duplicate_function_code"
)

// Violation describes one geometry problem. Start and End are the inclusive
// bit range involved; Other names the second field for cross-field conflicts.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Field   string        `json:"field"`
	Other   string        `json:"other,omitempty"`
	Segment int           `json:"segment"`
	Start   uint          `json:"start"`
	End     uint          `json:"end"`
	Message string        `json:"message"`
}

func (v Violation) Error() string {
	return v.Message
}

// Validate checks every field against the frame and against each other.
// It never modifies fields and returns nil when the layout is clean.
func Validate(fields []Field, frame Frame) []Violation {
	width := frame.Width()
	var out []Violation

	// owner[b] is the index+1 of the field that first claimed bit b.
	owner := make([]int, width)
	fcSeen := ""

	for fi, f := range fields {
		if f.IsFunctionCode() {
			if fcSeen != "" {
				out = append(out, Violation{
					Kind:    DuplicateFunctionCode,
					Field:   f.Name,
					Other:   fcSeen,
					Segment: -1,
					Message: fmt.Sprintf("field %q is bound to the function code, already bound to %q", f.Name, fcSeen),
				})
			} else {
				fcSeen = f.Name
			}
		}

		if sum := f.SegmentBits(); sum != f.Bits {
			out = append(out, Violation{
				Kind:    WidthMismatch,
				Field:   f.Name,
				Segment: -1,
				Message: fmt.Sprintf("field %q declares %d bits but its segments total %d", f.Name, f.Bits, sum),
			})
		}

		for si, s := range f.Segments {
			if s.Bits < 1 || !s.Fits(width) {
				out = append(out, Violation{
					Kind:    ExceedsLimit,
					Field:   f.Name,
					Segment: si,
					Start:   s.Position,
					End:     lastBit(s),
					Message: fmt.Sprintf("field %q segment %d [%d..%d] exceeds the %d-bit frame", f.Name, si, s.Position, lastBit(s), width),
				})
			}
			for sj := 0; sj < si; sj++ {
				if s.Overlaps(f.Segments[sj]) {
					lo, hi := overlapRange(s, f.Segments[sj])
					out = append(out, Violation{
						Kind:    IntraFieldOverlap,
						Field:   f.Name,
						Segment: si,
						Start:   lo,
						End:     hi,
						Message: fmt.Sprintf("field %q segments %d and %d overlap at bits %d..%d", f.Name, sj, si, lo, hi),
					})
				}
			}

			conflictOwner := -1
			var lo, hi uint
			for b := s.Position; b < s.End() && b < width; b++ {
				o := owner[b] - 1
				switch {
				case o < 0:
					owner[b] = fi + 1
				case o != fi:
					if conflictOwner < 0 {
						conflictOwner, lo = o, b
					}
					if o == conflictOwner {
						hi = b
					}
				}
			}
			if conflictOwner >= 0 {
				other := fields[conflictOwner].Name
				out = append(out, Violation{
					Kind:    CrossFieldConflict,
					Field:   f.Name,
					Other:   other,
					Segment: si,
					Start:   lo,
					End:     hi,
					Message: fmt.Sprintf("field %q conflicts with %q at bits %d..%d", f.Name, other, lo, hi),
				})
			}
		}
	}
	return out
}

// UsedBits returns, for each identifier bit, the index of the field that owns
// it or -1 when the bit is free. Later claimants never displace earlier ones.
func UsedBits(fields []Field, frame Frame) []int {
	width := frame.Width()
	used := make([]int, width)
	for i := range used {
		used[i] = -1
	}
	for fi, f := range fields {
		for _, s := range f.Segments {
			for b := s.Position; b < s.End() && b < width; b++ {
				if used[b] < 0 {
					used[b] = fi
				}
			}
		}
	}
	return used
}

func lastBit(s Segment) uint {
	if s.Bits == 0 {
		return s.Position
	}
	return s.End() - 1
}

func overlapRange(a, b Segment) (uint, uint) {
	lo := max(a.Position, b.Position)
	hi := min(a.End(), b.End()) - 1
	return lo, hi
}
