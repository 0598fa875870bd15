package layout

import (
	"errors"
	"testing"
)

func defaultFields(t *testing.T) []Field {
	t.Helper()
	p, ok := LookupPreset("default")
	if !ok {
		t.Fatal("default preset missing")
	}
	return p.Fields()
}

func TestAddField(t *testing.T) {
	fields := defaultFields(t)

	out, err := AddField(fields, Field{Name: "Priority", Bits: 3}, FrameExtended)
	if err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if len(out) != len(fields)+1 {
		t.Fatalf("len = %d, want %d", len(out), len(fields)+1)
	}
	added := out[len(out)-1]
	if added.Segments[0].Position != 26 || added.Kind != KindFixed {
		t.Errorf("added = %+v, want position 26 fixed", added)
	}

	var ve *ValidationError
	if _, err := AddField(fields, Field{Name: "  "}, FrameExtended); !errors.As(err, &ve) {
		t.Errorf("empty name: err = %v, want ValidationError", err)
	}
	if _, err := AddField(fields, Field{Name: "Channel"}, FrameExtended); err == nil {
		t.Error("duplicate name accepted")
	}
	if _, err := AddField(fields, Field{Name: "FC2", Kind: KindSystemManaged, Source: SourceFunctionCode}, FrameExtended); err == nil {
		t.Error("second function code field accepted")
	}
}

func TestSetBits(t *testing.T) {
	fields := defaultFields(t)

	out, err := SetBits(fields, 0, 6, FrameExtended)
	if err != nil {
		t.Fatalf("SetBits: %v", err)
	}
	if out[0].Bits != 6 || out[0].Segments[0].Bits != 6 {
		t.Errorf("field = %+v", out[0])
	}
	if fields[0].Bits != 4 {
		t.Error("input slice modified")
	}

	if _, err := SetBits(fields, 0, 0, FrameExtended); err == nil {
		t.Error("zero bits accepted")
	}
	if _, err := SetBits(fields, 0, 12, FrameExtended); err == nil {
		t.Error("segment past frame accepted")
	}

	split := []Field{{Name: "S", Bits: 8, Segments: []Segment{{23, 3}, {5, 5}}}}
	out, err = SetBits(split, 0, 6, FrameExtended)
	if err != nil {
		t.Fatalf("SetBits split: %v", err)
	}
	if out[0].Segments[1].Bits != 3 {
		t.Errorf("last segment bits = %d, want 3", out[0].Segments[1].Bits)
	}
	if _, err := SetBits(split, 0, 3, FrameExtended); err == nil {
		t.Error("shrinking last segment to zero accepted")
	}
}

func TestUpdateSegment(t *testing.T) {
	fields := []Field{{Name: "S", Bits: 8, Segments: []Segment{{0, 4}, {8, 4}}}}

	out, err := UpdateSegment(fields, 0, 1, Segment{Position: 10, Bits: 6}, FrameExtended)
	if err != nil {
		t.Fatalf("UpdateSegment: %v", err)
	}
	if out[0].Bits != 10 {
		t.Errorf("bits = %d, want 10", out[0].Bits)
	}

	tests := []struct {
		name string
		seg  Segment
	}{
		{"overlap", Segment{Position: 2, Bits: 4}},
		{"position past frame", Segment{Position: 11, Bits: 1}},
		{"end past frame", Segment{Position: 8, Bits: 4}},
		{"zero bits", Segment{Position: 5, Bits: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UpdateSegment(fields, 0, 1, tt.seg, FrameStandard); err == nil {
				t.Errorf("UpdateSegment(%+v) accepted", tt.seg)
			}
		})
	}
}

func TestAddRemoveSegment(t *testing.T) {
	fields := []Field{{Name: "S", Bits: 2, Segments: []Segment{{0, 2}}}}

	out, err := AddSegment(fields, 0, FrameStandard)
	if err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if got := out[0].Segments[1]; got.Position != 2 || got.Bits != 1 || out[0].Bits != 3 {
		t.Errorf("added segment = %+v bits %d", got, out[0].Bits)
	}

	out, err = RemoveSegment(out, 0, 0)
	if err != nil {
		t.Fatalf("RemoveSegment: %v", err)
	}
	if len(out[0].Segments) != 1 || out[0].Bits != 1 {
		t.Errorf("after remove = %+v", out[0])
	}
	if _, err := RemoveSegment(out, 0, 0); err == nil {
		t.Error("removing the last segment accepted")
	}
}

func TestBatchEdits(t *testing.T) {
	fields := defaultFields(t)

	if _, err := SetBatch(fields, 2, true); err == nil {
		t.Error("system-managed field switched to batch")
	}

	out, err := SetBatch(fields, 0, true)
	if err != nil {
		t.Fatalf("SetBatch: %v", err)
	}
	if r := out[0].Range(); r.Min != 0 || r.Max != 15 {
		t.Errorf("range = %+v, want 0..15", r)
	}

	out, err = SetBatchBound(out, 0, BoundMin, 10)
	if err != nil {
		t.Fatal(err)
	}
	out, err = SetBatchBound(out, 0, BoundMax, 4)
	if err != nil {
		t.Fatal(err)
	}
	if r := out[0].Range(); r.Min != 4 || r.Max != 4 {
		t.Errorf("range = %+v, want 4..4", r)
	}
	if _, err := SetBatchBound(out, 0, BoundMax, 16); err == nil {
		t.Error("max above field width accepted")
	}
	if _, err := SetBatchBound(out, 0, BoundMin, -1); err == nil {
		t.Error("negative min accepted")
	}

	out, err = SetBatch(out, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Kind != KindFixed || out[0].BatchRange != nil {
		t.Errorf("disabled batch = %+v", out[0])
	}
}

func TestSetDefaultClamps(t *testing.T) {
	fields := defaultFields(t)
	out, err := SetDefault(fields, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Default != 15 {
		t.Errorf("default = %d, want 15", out[0].Default)
	}
}

func TestRename(t *testing.T) {
	fields := defaultFields(t)
	if _, err := Rename(fields, 0, "Channel"); err == nil {
		t.Error("rename to existing name accepted")
	}
	out, err := Rename(fields, 0, " Board ")
	if err != nil || out[0].Name != "Board" {
		t.Errorf("Rename = %q, %v", out[0].Name, err)
	}
}

func TestFindNextAvailablePosition(t *testing.T) {
	if got := FindNextAvailablePosition(nil, FrameExtended, 4); got != 25 {
		t.Errorf("empty layout = %d, want 25", got)
	}
	full := []Field{{Name: "all", Bits: 11, Segments: []Segment{{0, 11}}}}
	if got := FindNextAvailablePosition(full, FrameStandard, 4); got != 0 {
		t.Errorf("full layout = %d, want 0", got)
	}
	fields := []Field{{Name: "top", Bits: 4, Segments: []Segment{{7, 4}}}}
	if got := FindNextAvailablePosition(fields, FrameStandard, 4); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestAutoArrange(t *testing.T) {
	fields := []Field{
		{Name: "small", Bits: 2, Segments: []Segment{{0, 1}, {5, 1}}},
		{Name: "big", Bits: 5, Segments: []Segment{{0, 5}}},
	}
	out := AutoArrange(fields, FrameStandard)
	if out[0].Name != "small" {
		t.Fatal("declared order changed")
	}
	if s := out[1].Segments; len(s) != 1 || s[0].Position != 6 {
		t.Errorf("big segments = %+v, want [6,5]", s)
	}
	if s := out[0].Segments; len(s) != 1 || s[0].Position != 4 || s[0].Bits != 2 {
		t.Errorf("small segments = %+v, want [4,2]", s)
	}
	if vs := Validate(out, FrameStandard); vs != nil {
		t.Errorf("arranged layout has violations: %v", vs)
	}
}

func TestFunctionCodeMax(t *testing.T) {
	if got := FunctionCodeMax(defaultFields(t)); got != 15 {
		t.Errorf("default = %d, want 15", got)
	}
	p, _ := LookupPreset("simple")
	if got := FunctionCodeMax(p.Fields()); got != 255 {
		t.Errorf("simple = %d, want 255", got)
	}
	if got := FunctionCodeMax(nil); got != 15 {
		t.Errorf("none = %d, want 15", got)
	}
}
