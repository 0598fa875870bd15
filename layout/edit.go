package layout

import (
	"sort"
	"strings"
)

// Bound selects one end of a batch range.
type Bound int

const (
	BoundMin Bound = iota
	BoundMax
)

// The edit functions below work on a copy of fields and return it. On error
// the original slice is returned untouched along with a *ValidationError.

func editable(fields []Field, i int) ([]Field, error) {
	if i < 0 || i >= len(fields) {
		return fields, invalid("", "field index %d out of range", i)
	}
	return CloneFields(fields), nil
}

// AddField appends f. A field without segments is placed at the highest free
// run of its width. Names must be unique and non-empty.
func AddField(fields []Field, f Field, frame Frame) ([]Field, error) {
	f = f.Clone()
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return fields, invalid("", "name is required")
	}
	if FindField(fields, f.Name) >= 0 {
		return fields, invalid(f.Name, "already exists")
	}
	if f.Kind == "" {
		f.Kind = KindFixed
	}
	switch f.Kind {
	case KindFixed, KindBatch, KindSystemManaged:
	default:
		return fields, invalid(f.Name, "unknown kind %q", f.Kind)
	}
	if f.IsFunctionCode() {
		if j, ok := FunctionCodeField(fields); ok {
			return fields, invalid(f.Name, "function code is already bound to %q", fields[j].Name)
		}
	}
	width := frame.Width()
	if len(f.Segments) == 0 {
		if f.Bits == 0 {
			f.Bits = 4
		}
		if f.Bits > width {
			return fields, invalid(f.Name, "bits must be 1..%d", width)
		}
		f.Segments = []Segment{{Position: FindNextAvailablePosition(fields, frame, f.Bits), Bits: f.Bits}}
	}
	for si, s := range f.Segments {
		if err := checkSegment(f, si, s, width); err != nil {
			return fields, err
		}
	}
	if f.Bits == 0 {
		f.Bits = f.SegmentBits()
	} else if f.Bits != f.SegmentBits() {
		return fields, invalid(f.Name, "bits %d do not match segment total %d", f.Bits, f.SegmentBits())
	}
	if f.IsBatch() && f.BatchRange != nil {
		if err := checkRange(f, *f.BatchRange); err != nil {
			return fields, err
		}
	}
	f.Default = int64(clamp(f.Default, f.MaxValue()))

	out := CloneFields(fields)
	return append(out, f), nil
}

// RemoveField deletes field i.
func RemoveField(fields []Field, i int) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	return append(out[:i], out[i+1:]...), nil
}

// Rename sets a new, unique, non-empty name.
func Rename(fields []Field, i int, name string) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fields, invalid(fields[i].Name, "name is required")
	}
	if j := FindField(fields, name); j >= 0 && j != i {
		return fields, invalid(name, "already exists")
	}
	out[i].Name = name
	return out, nil
}

// SetAbbreviation changes the placeholder token. Empty restores the default.
func SetAbbreviation(fields []Field, i int, abbr string) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	abbr = strings.TrimSpace(abbr)
	if strings.ContainsAny(abbr, "{}:") {
		return fields, invalid(fields[i].Name, "abbreviation %q contains a reserved character", abbr)
	}
	out[i].Abbreviation = abbr
	return out, nil
}

// SetBits changes the field width. A single segment is resized; otherwise the
// last segment absorbs the difference and must keep at least one bit.
func SetBits(fields []Field, i int, bits uint, frame Frame) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	width := frame.Width()
	if bits < 1 || bits > width {
		return fields, invalid(f.Name, "bits must be 1..%d", width)
	}
	switch len(f.Segments) {
	case 0:
		f.Segments = []Segment{{Position: FindNextAvailablePosition(fields, frame, bits), Bits: bits}}
	case 1:
		f.Segments[0].Bits = bits
	default:
		last := &f.Segments[len(f.Segments)-1]
		others := f.SegmentBits() - last.Bits
		if bits <= others {
			return fields, invalid(f.Name, "bits %d leave no room for the last segment", bits)
		}
		last.Bits = bits - others
	}
	for si, s := range f.Segments {
		if err := checkSegment(*f, si, s, width); err != nil {
			return fields, err
		}
	}
	f.Bits = bits
	f.Default = int64(clamp(f.Default, f.MaxValue()))
	if f.BatchRange != nil {
		r := clampRange(*f.BatchRange, f.MaxValue())
		f.BatchRange = &r
	}
	return out, nil
}

// UpdateSegment replaces segment si of field i and recomputes the field width.
func UpdateSegment(fields []Field, i, si int, s Segment, frame Frame) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	if si < 0 || si >= len(f.Segments) {
		return fields, invalid(f.Name, "segment %d does not exist", si)
	}
	if err := checkSegment(*f, si, s, frame.Width()); err != nil {
		return fields, err
	}
	f.Segments[si] = s
	f.Bits = f.SegmentBits()
	return out, nil
}

// AddSegment appends a one-bit segment at the lowest bit the field does not
// already cover.
func AddSegment(fields []Field, i int, frame Frame) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	width := frame.Width()
	own := make([]bool, width)
	for _, s := range f.Segments {
		for b := s.Position; b < s.End() && b < width; b++ {
			own[b] = true
		}
	}
	for b := uint(0); b < width; b++ {
		if !own[b] {
			f.Segments = append(f.Segments, Segment{Position: b, Bits: 1})
			f.Bits = f.SegmentBits()
			return out, nil
		}
	}
	return fields, invalid(f.Name, "no free bit left for a new segment")
}

// RemoveSegment deletes segment si. A field keeps at least one segment.
func RemoveSegment(fields []Field, i, si int) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	if si < 0 || si >= len(f.Segments) {
		return fields, invalid(f.Name, "segment %d does not exist", si)
	}
	if len(f.Segments) <= 1 {
		return fields, invalid(f.Name, "at least one segment is required")
	}
	f.Segments = append(f.Segments[:si], f.Segments[si+1:]...)
	f.Bits = f.SegmentBits()
	return out, nil
}

// SetBatch switches a field between batch and fixed. Enabling resets the range
// to the full width of the field.
func SetBatch(fields []Field, i int, enabled bool) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	if f.Kind == KindSystemManaged {
		return fields, invalid(f.Name, "system-managed fields cannot be batch fields")
	}
	if enabled {
		f.Kind = KindBatch
		f.BatchRange = &Range{Min: 0, Max: int64(f.MaxValue())}
	} else {
		f.Kind = KindFixed
		f.BatchRange = nil
	}
	return out, nil
}

// SetBatchBound sets one end of a batch range. The other end moves when needed
// to keep min <= max.
func SetBatchBound(fields []Field, i int, b Bound, v int64) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	f := &out[i]
	if !f.IsBatch() {
		return fields, invalid(f.Name, "not a batch field")
	}
	if v < 0 {
		return fields, invalid(f.Name, "batch range value must not be negative")
	}
	if v > int64(f.MaxValue()) {
		return fields, invalid(f.Name, "batch range value %d exceeds the field maximum %d", v, f.MaxValue())
	}
	r := f.Range()
	if b == BoundMin {
		r.Min = v
		if r.Min > r.Max {
			r.Max = r.Min
		}
	} else {
		r.Max = v
		if r.Max < r.Min {
			r.Min = r.Max
		}
	}
	f.BatchRange = &r
	return out, nil
}

// SetDefault stores v clamped to the field's width.
func SetDefault(fields []Field, i int, v int64) ([]Field, error) {
	out, err := editable(fields, i)
	if err != nil {
		return fields, err
	}
	out[i].Default = int64(clamp(v, out[i].MaxValue()))
	return out, nil
}

// FindNextAvailablePosition returns the highest start position at which width
// consecutive bits are unclaimed, or 0 when there is no such run.
func FindNextAvailablePosition(fields []Field, frame Frame, width uint) uint {
	total := frame.Width()
	if width == 0 || width > total {
		return 0
	}
	used := UsedBits(fields, frame)
	for start := int(total - width); start >= 0; start-- {
		free := true
		for b := start; b < start+int(width); b++ {
			if used[b] >= 0 {
				free = false
				break
			}
		}
		if free {
			return uint(start)
		}
	}
	return 0
}

// AutoArrange repacks every field into a single segment, widest first, from
// the top of the identifier downward. Declared order is preserved.
func AutoArrange(fields []Field, frame Frame) []Field {
	out := CloneFields(fields)
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return out[order[a]].Bits > out[order[b]].Bits })

	pos := int(frame.Width())
	for _, i := range order {
		f := &out[i]
		start := max(0, pos-int(f.Bits))
		f.Segments = []Segment{{Position: uint(start), Bits: f.Bits}}
		pos = start
	}
	return out
}

func checkSegment(f Field, si int, s Segment, width uint) error {
	if s.Position >= width {
		return invalid(f.Name, "segment position %d must be 0..%d", s.Position, width-1)
	}
	if s.Bits < 1 || s.Bits > width {
		return invalid(f.Name, "segment bits must be 1..%d", width)
	}
	if !s.Fits(width) {
		return invalid(f.Name, "segment [%d..%d] exceeds the %d-bit frame", s.Position, s.End()-1, width)
	}
	for sj, o := range f.Segments {
		if sj != si && s.Overlaps(o) {
			return invalid(f.Name, "segment overlaps segment %d", sj)
		}
	}
	return nil
}

func checkRange(f Field, r Range) error {
	if r.Min < 0 || r.Max < 0 {
		return invalid(f.Name, "batch range value must not be negative")
	}
	if r.Max > int64(f.MaxValue()) {
		return invalid(f.Name, "batch range value %d exceeds the field maximum %d", r.Max, f.MaxValue())
	}
	if r.Min > r.Max {
		return invalid(f.Name, "batch range min %d is greater than max %d", r.Min, r.Max)
	}
	return nil
}

func clampRange(r Range, max uint32) Range {
	r.Min = int64(clamp(r.Min, max))
	r.Max = int64(clamp(r.Max, max))
	if r.Min > r.Max {
		r.Min = r.Max
	}
	return r
}
