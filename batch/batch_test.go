package batch

import (
	"errors"
	"math"
	"testing"

	"canforge/layout"
	"canforge/message"
)

func presetFields(t *testing.T, name string) ([]layout.Field, layout.Frame) {
	t.Helper()
	p, ok := layout.LookupPreset(name)
	if !ok {
		t.Fatalf("preset %s missing", name)
	}
	return p.Fields(), p.Frame
}

func TestCount(t *testing.T) {
	tests := []struct {
		name string
		dims []Dimension
		want uint64
	}{
		{"none", nil, 0},
		{"single", []Dimension{{Min: 0, Max: 15}}, 16},
		{"product", []Dimension{{Min: 1, Max: 3}, {Min: 0, Max: 4}}, 15},
		{"inverted", []Dimension{{Min: 5, Max: 1}, {Min: 0, Max: 4}}, 0},
		{"saturates", []Dimension{{Min: 0, Max: math.MaxInt64 - 1}, {Min: 0, Max: math.MaxInt64 - 1}, {Min: 0, Max: 8}}, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.dims); got != tt.want {
				t.Errorf("Count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCounterOrder(t *testing.T) {
	dims := []Dimension{{Field: 0, Min: 1, Max: 2}, {Field: 3, Min: 5, Max: 7}}
	got := Combinations(dims)
	want := [][2]int64{{1, 5}, {1, 6}, {1, 7}, {2, 5}, {2, 6}, {2, 7}}
	if len(got) != len(want) {
		t.Fatalf("got %d combinations, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c[0].Field != 0 || c[1].Field != 3 {
			t.Fatalf("combination %d fields = %+v", i, c)
		}
		if c[0].Value != want[i][0] || c[1].Value != want[i][1] {
			t.Errorf("combination %d = (%d,%d), want %v", i, c[0].Value, c[1].Value, want[i])
		}
	}
}

func TestCombinationsMatchesCount(t *testing.T) {
	dims := []Dimension{{Min: 0, Max: 2}, {Min: 1, Max: 1}, {Min: 10, Max: 13}}
	if got := uint64(len(Combinations(dims))); got != Count(dims) {
		t.Errorf("len = %d, Count = %d", got, Count(dims))
	}
	if Combinations(nil) != nil {
		t.Error("no dimensions should yield no combinations")
	}
	c := NewCounter(nil)
	if _, ok := c.Next(); ok {
		t.Error("empty counter yielded a combination")
	}
}

func TestGuard(t *testing.T) {
	g := Guard{}
	if err := g.Check(50, 2); err != nil {
		t.Errorf("100 total should pass: %v", err)
	}
	err := g.Check(51, 2)
	var w *SizeWarning
	if !errors.As(err, &w) || !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want SizeWarning", err)
	}
	if w.Total != 102 || w.Threshold != DefaultThreshold {
		t.Errorf("warning = %+v", w)
	}
	if err := (Guard{Threshold: 1000}).Check(51, 2); err != nil {
		t.Errorf("custom threshold: %v", err)
	}
}

func TestGenerate(t *testing.T) {
	fields, frame := presetFields(t, "default")
	templates := []message.Template{
		{Name: "Status", Length: 8, Node: "ECU1", FunctionCode: 1, NamingPattern: "Status_CH{CH:02d}_{num}",
			Signals: []message.Signal{{Name: "Val_{CH}", Length: 8, Factor: 1}}},
		{Name: "Cmd", Length: 2, FunctionCode: 2},
	}

	res, err := Generate(Request{Fields: fields, Frame: frame, Templates: templates, Confirm: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Combinations != 16 || res.Total != 32 || len(res.Messages) != 32 {
		t.Fatalf("result = %d combos %d total %d messages", res.Combinations, res.Total, len(res.Messages))
	}

	first, second, third := res.Messages[0], res.Messages[1], res.Messages[2]
	if first.Name != "Status_CH00_0" || first.ID != 1<<8 {
		t.Errorf("first = %s %#x", first.Name, first.ID)
	}
	if second.Name != "Cmd_1_Data" || second.ID != 2<<8 {
		t.Errorf("second = %s %#x", second.Name, second.ID)
	}
	if third.Name != "Status_CH01_2" || third.ID != 1<<12|1<<8 {
		t.Errorf("third = %s %#x", third.Name, third.ID)
	}
	if third.Signals[0].Name != "Val_1" {
		t.Errorf("signal name = %q", third.Signals[0].Name)
	}
	if templates[0].Signals[0].Name != "Val_{CH}" {
		t.Error("template signal modified")
	}
}

func TestGenerateRejections(t *testing.T) {
	fields, frame := presetFields(t, "default")
	tmpl := []message.Template{message.DefaultTemplate()}

	noBatch := layout.CloneFields(fields)
	noBatch[1].Kind = layout.KindFixed

	conflicting := layout.CloneFields(fields)
	conflicting[0].Segments[0].Position = 18

	badPattern := []message.Template{{Name: "M", Length: 8, NamingPattern: "{XX}"}}
	pastPayload := []message.Template{{Name: "M", Length: 8, Signals: []message.Signal{{Name: "S", StartBit: 60, Length: 8, Factor: 1}}}}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"conflicts", Request{Fields: conflicting, Frame: frame, Templates: tmpl}, ErrConflicts},
		{"no templates", Request{Fields: fields, Frame: frame}, ErrNoTemplates},
		{"no batch fields", Request{Fields: noBatch, Frame: frame, Templates: tmpl}, ErrNoBatchFields},
		{"bad pattern", Request{Fields: fields, Frame: frame, Templates: badPattern}, ErrInvalidPattern},
		{"signal past payload", Request{Fields: fields, Frame: frame, Templates: pastPayload}, ErrInvalidTemplate},
		{"needs confirmation", Request{Fields: fields, Frame: frame, Templates: tmpl, Threshold: 10}, ErrConfirmationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Generate(tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("result returned with error")
			}
		})
	}

	var ce *ConflictError
	_, err := Generate(Request{Fields: conflicting, Frame: frame, Templates: tmpl})
	if !errors.As(err, &ce) || len(ce.Violations) == 0 {
		t.Errorf("conflict error = %v", err)
	}
}

func TestGenerateTooLarge(t *testing.T) {
	fields := []layout.Field{{Name: "Wide", Abbreviation: "W", Bits: 24, Segments: []layout.Segment{{Position: 0, Bits: 24}}, Kind: layout.KindBatch}}
	_, err := Generate(Request{Fields: fields, Frame: layout.FrameExtended, Templates: []message.Template{message.DefaultTemplate()}, Confirm: true})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestPlan(t *testing.T) {
	fields, frame := presetFields(t, "split_channel")
	s := Plan(Request{Fields: fields, Frame: frame, Templates: []message.Template{{}, {}, {}}})
	if s.BatchFields != 1 || s.Combinations != 50 || s.Total != 150 || !s.NeedsConfirmation {
		t.Errorf("summary = %+v", s)
	}
}

func TestFallback(t *testing.T) {
	fields, frame := presetFields(t, "simple")
	msgs := Fallback(fields, frame, []message.Template{{Name: "M", Length: 8, FunctionCode: 3}})
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	// CH default 0, FC 3, DEV 1
	if want := uint32(3<<8 | 1); msgs[0].ID != want || msgs[0].Name != "M" {
		t.Errorf("fallback = %s %#x, want M %#x", msgs[0].Name, msgs[0].ID, want)
	}
}
