// Package layout models CAN identifier fields and packs them into numeric IDs.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Frame selects the CAN identifier addressing domain.
type Frame string

const (
	FrameStandard Frame = "standard"
	FrameExtended Frame = "extended"
)

// Identifier limits for each frame format.
const (
	MaxStandardID uint32 = 0x7FF
	MaxExtendedID uint32 = 0x1FFFFFFF
)

// ParseFrame accepts "standard"/"extended" (and the short forms "std"/"ext").
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "std", "11":
		return FrameStandard, nil
	case "extended", "ext", "29", "":
		return FrameExtended, nil
	}
	return "", fmt.Errorf("unknown frame format %q", s)
}

// Width returns the identifier width in bits. An unset frame is extended.
func (f Frame) Width() uint {
	if f == FrameStandard {
		return 11
	}
	return 29
}

// MaxID returns the largest identifier representable in this frame.
func (f Frame) MaxID() uint32 {
	if f == FrameStandard {
		return MaxStandardID
	}
	return MaxExtendedID
}

// IsExtended reports whether this is the 29-bit format.
func (f Frame) IsExtended() bool {
	return f != FrameStandard
}

func (f Frame) String() string {
	if f == FrameStandard {
		return string(FrameStandard)
	}
	return string(FrameExtended)
}

// Kind determines where a field's value comes from during generation.
type Kind string

const (
	KindFixed         Kind = "fixed"
	KindBatch         Kind = "batch"
	KindSystemManaged Kind = "system_managed"
)

// SourceFunctionCode binds a system-managed field to the message function code.
const SourceFunctionCode = "function_code"

// Segment is a contiguous bit range [Position, Position+Bits) of the identifier.
type Segment struct {
	Position uint `yaml:"position" json:"position"`
	Bits     uint `yaml:"bits" json:"bits"`
}

// End returns the first bit past the segment.
func (s Segment) End() uint {
	return s.Position + s.Bits
}

// Fits reports whether the segment lies inside a frame of width bits.
func (s Segment) Fits(width uint) bool {
	return s.Position < width && s.Bits <= width-s.Position
}

// Overlaps reports whether two segments share any bit.
func (s Segment) Overlaps(o Segment) bool {
	return s.Position < o.End() && o.Position < s.End()
}

// Range is an inclusive batch value range.
type Range struct {
	Min int64 `yaml:"min" json:"min"`
	Max int64 `yaml:"max" json:"max"`
}

// Size returns the number of values in the range, 0 when inverted.
func (r Range) Size() uint64 {
	if r.Max < r.Min {
		return 0
	}
	return uint64(r.Max-r.Min) + 1
}

// Field is a named logical value occupying one or more identifier segments.
type Field struct {
	Name         string    `yaml:"name" json:"name"`
	Abbreviation string    `yaml:"abbreviation,omitempty" json:"abbreviation,omitempty"`
	Bits         uint      `yaml:"bits" json:"bits"`
	Segments     []Segment `yaml:"segments" json:"segments"`
	Kind         Kind      `yaml:"kind" json:"kind"`
	Default      int64     `yaml:"default" json:"default"`
	BatchRange   *Range    `yaml:"batch_range,omitempty" json:"batch_range,omitempty"`
	Source       string    `yaml:"source,omitempty" json:"source,omitempty"`
	Description  string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// Abbrev returns the placeholder token for this field. An empty abbreviation
// falls back to the first three characters of the name, upper-cased.
func (f Field) Abbrev() string {
	if f.Abbreviation != "" {
		return f.Abbreviation
	}
	r := []rune(f.Name)
	if len(r) > 3 {
		r = r[:3]
	}
	return strings.ToUpper(string(r))
}

// MaxValue returns 2^Bits-1, saturating at MaxUint32.
func (f Field) MaxValue() uint32 {
	return maxForBits(f.Bits)
}

// IsBatch reports whether the field varies across generated messages.
func (f Field) IsBatch() bool {
	return f.Kind == KindBatch
}

// IsFunctionCode reports whether the field takes the message function code.
func (f Field) IsFunctionCode() bool {
	return f.Kind == KindSystemManaged && f.Source == SourceFunctionCode
}

// Range returns the batch range, defaulting to the full width of the field.
func (f Field) Range() Range {
	if f.BatchRange != nil {
		return *f.BatchRange
	}
	return Range{Min: 0, Max: int64(f.MaxValue())}
}

// SortedSegments returns the segments ordered by ascending position.
func (f Field) SortedSegments() []Segment {
	segs := make([]Segment, len(f.Segments))
	copy(segs, f.Segments)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Position < segs[j].Position })
	return segs
}

// SegmentBits returns the sum of all segment widths.
func (f Field) SegmentBits() uint {
	var n uint
	for _, s := range f.Segments {
		n += s.Bits
	}
	return n
}

// Clone returns a deep copy.
func (f Field) Clone() Field {
	c := f
	c.Segments = append([]Segment(nil), f.Segments...)
	if f.BatchRange != nil {
		r := *f.BatchRange
		c.BatchRange = &r
	}
	return c
}

// CloneFields deep-copies a field list.
func CloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

// Abbreviations returns the placeholder tokens of all fields in declared order.
func Abbreviations(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Abbrev()
	}
	return out
}

// FindField returns the index of the field with the given name, or -1.
func FindField(fields []Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FunctionCodeField returns the index of the first function-code field.
func FunctionCodeField(fields []Field) (int, bool) {
	for i, f := range fields {
		if f.IsFunctionCode() {
			return i, true
		}
	}
	return -1, false
}

// FunctionCodeMax returns the largest function code the layout can carry,
// or 15 when no field is bound to the function code.
func FunctionCodeMax(fields []Field) uint32 {
	if i, ok := FunctionCodeField(fields); ok {
		return fields[i].MaxValue()
	}
	return 15
}

func maxForBits(bits uint) uint32 {
	if bits >= 32 {
		return math.MaxUint32
	}
	return uint32(1)<<bits - 1
}

func clamp(v int64, max uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(max) {
		return max
	}
	return uint32(v)
}
