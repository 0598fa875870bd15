package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// Placement is one segment's share of a composed field value.
type Placement struct {
	Position uint   `json:"position"`
	Bits     uint   `json:"bits"`
	Value    uint32 `json:"value"`
}

// Context supplies the values that are not configured on the fields themselves.
type Context struct {
	// Batch maps a field index to its value in the current combination.
	Batch        map[int]int64
	FunctionCode int64
}

// Compose splits value across the field's segments, lowest position first.
func Compose(f Field, value uint32) []Placement {
	segs := f.SortedSegments()
	out := make([]Placement, 0, len(segs))
	remaining := uint64(value)
	for _, s := range segs {
		mask := uint64(1)<<s.Bits - 1
		out = append(out, Placement{Position: s.Position, Bits: s.Bits, Value: uint32(remaining & mask)})
		remaining >>= s.Bits
	}
	return out
}

// Decompose reads a field value back out of an identifier.
func Decompose(f Field, id uint32) uint32 {
	var value, shift uint64
	for _, s := range f.SortedSegments() {
		mask := uint64(1)<<s.Bits - 1
		value |= ((uint64(id) >> s.Position) & mask) << shift
		shift += uint64(s.Bits)
	}
	return uint32(value)
}

// ResolveFieldValue returns the value field i contributes under ctx, clamped
// to the field's width.
func ResolveFieldValue(f Field, i int, ctx Context) uint32 {
	v := f.Default
	switch {
	case f.IsBatch():
		if bv, ok := ctx.Batch[i]; ok {
			v = bv
		}
	case f.IsFunctionCode():
		v = ctx.FunctionCode
	}
	return clamp(v, f.MaxValue())
}

// ComposeID ORs every field's placements into one identifier masked to the frame.
func ComposeID(fields []Field, frame Frame, ctx Context) uint32 {
	var id uint64
	for i, f := range fields {
		for _, p := range Compose(f, ResolveFieldValue(f, i, ctx)) {
			id |= uint64(p.Value) << p.Position
		}
	}
	return uint32(id & uint64(frame.MaxID()))
}

// FormatHex renders an id as upper-case hex, 3 digits for standard frames and
// 8 for extended.
func FormatHex(id uint32, frame Frame) string {
	if frame.IsExtended() {
		return fmt.Sprintf("0x%08X", id)
	}
	return fmt.Sprintf("0x%03X", id)
}

// FormatBinary renders an id zero-padded to the frame width.
func FormatBinary(id uint32, frame Frame) string {
	s := strconv.FormatUint(uint64(id&frame.MaxID()), 2)
	w := int(frame.Width())
	if len(s) < w {
		s = strings.Repeat("0", w-len(s)) + s
	}
	return s
}
