package message

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"canforge/layout"
)

func TestTemplatePattern(t *testing.T) {
	tmpl := Template{Name: "Temp"}
	if got := tmpl.Pattern(); got != "Temp_{num}_Data" {
		t.Errorf("Pattern = %q", got)
	}
	tmpl.NamingPattern = "T{num}"
	if got := tmpl.Pattern(); got != "T{num}" {
		t.Errorf("Pattern = %q", got)
	}
}

func TestValidate(t *testing.T) {
	if issues := Validate(DefaultTemplate()); issues != nil {
		t.Fatalf("default template: %v", issues)
	}

	tests := []struct {
		name    string
		tmpl    Template
		signals []Signal
	}{
		{"past payload", Template{Name: "M", Length: 1}, []Signal{{Name: "A", StartBit: 4, Length: 8}}},
		{"overlap", Template{Name: "M", Length: 2}, []Signal{{Name: "A", Length: 8}, {Name: "B", StartBit: 7, Length: 2}}},
		{"duplicate", Template{Name: "M", Length: 2}, []Signal{{Name: "A", Length: 4}, {Name: "A", StartBit: 4, Length: 4}}},
		{"zero length", Template{Name: "M", Length: 1}, []Signal{{Name: "A"}}},
		{"too long", Template{Name: "M", Length: 9}, nil},
		{"no name", Template{Length: 8}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tmpl.Signals = tt.signals
			if issues := Validate(tt.tmpl); len(issues) == 0 {
				t.Error("expected issues")
			}
		})
	}

	adjacent := Template{Name: "M", Length: 2, Signals: []Signal{{Name: "A", Length: 8}, {Name: "B", StartBit: 8, Length: 8}}}
	if issues := Validate(adjacent); issues != nil {
		t.Errorf("adjacent signals: %v", issues)
	}
}

func TestNextStartBit(t *testing.T) {
	tmpl := Template{Signals: []Signal{{StartBit: 8, Length: 4}, {StartBit: 0, Length: 8}}}
	if got := NextStartBit(tmpl); got != 12 {
		t.Errorf("NextStartBit = %d, want 12", got)
	}
}

func TestGeneratedFrame(t *testing.T) {
	g := Generated{Name: "M", ID: 0x7FF, Length: 8}
	f, err := g.Frame(layout.FrameStandard)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if f.IsExtended || f.Length != 8 {
		t.Errorf("frame = %+v", f)
	}

	g.ID = 0x800
	if _, err := g.Frame(layout.FrameStandard); err == nil {
		t.Error("standard frame accepted 0x800")
	}
	if _, err := g.Frame(layout.FrameExtended); err != nil {
		t.Errorf("extended frame: %v", err)
	}

	g.Length = 9
	if _, err := g.Frame(layout.FrameExtended); err == nil {
		t.Error("9-byte frame accepted")
	}
}

func TestParseByteOrder(t *testing.T) {
	for in, want := range map[string]ByteOrder{"": Intel, "LSB": Intel, "msb": Motorola, "Motorola": Motorola} {
		got, err := ParseByteOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseByteOrder(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseByteOrder("middle"); err == nil {
		t.Error("unknown byte order accepted")
	}
}

func TestSheetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.xlsx")
	in := []Template{
		{Name: "Status", Length: 4, Node: "ECU1", FunctionCode: 2, NamingPattern: "Status_CH{CH}", Signals: []Signal{
			{Name: "Temp", StartBit: 0, Length: 16, Signed: true, ByteOrder: Motorola, Factor: 0.1, Offset: -40, Min: -40, Max: 125, Unit: "C", Description: "temperature"},
			{Name: "Flags", StartBit: 16, Length: 8, ByteOrder: Intel, Factor: 1, Max: 255},
		}},
		{Name: "Empty", Length: 1},
	}
	if err := ExportSheet(path, in); err != nil {
		t.Fatalf("ExportSheet: %v", err)
	}

	out, err := ImportSheet(path)
	if err != nil {
		t.Fatalf("ImportSheet: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d templates, want 2", len(out))
	}
	st := out[0]
	if st.Name != "Status" || st.Length != 4 || st.FunctionCode != 2 || st.NamingPattern != "Status_CH{CH}" {
		t.Errorf("template = %+v", st)
	}
	if len(st.Signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(st.Signals))
	}
	temp := st.Signals[0]
	if !temp.Signed || temp.ByteOrder != Motorola || temp.Factor != 0.1 || temp.Offset != -40 || temp.Unit != "C" {
		t.Errorf("signal = %+v", temp)
	}
	if len(out[1].Signals) != 0 {
		t.Errorf("empty template has signals: %+v", out[1].Signals)
	}
}

func TestImportSheetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Message", "Signal", "Start Bit"},
		{"M1", "A", 0},
		{"M1", "B", 8},
		{"", "ignored", 0},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := ImportSheet(path)
	if err != nil {
		t.Fatalf("ImportSheet: %v", err)
	}
	if len(out) != 1 || len(out[0].Signals) != 2 {
		t.Fatalf("templates = %+v", out)
	}
	if out[0].Length != 8 {
		t.Errorf("length = %d, want 8", out[0].Length)
	}
	b := out[0].Signals[1]
	if b.Length != 8 || b.Factor != 1 || b.Max != 255 || b.ByteOrder != Intel {
		t.Errorf("signal defaults = %+v", b)
	}
}

func TestImportSheetErrors(t *testing.T) {
	if _, err := ImportSheet(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(t.TempDir(), "bad.xlsx")
	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]interface{}{"message", "signal", "factor"})
	f.SetSheetRow("Sheet1", "A2", &[]interface{}{"M", "S", "abc"})
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := ImportSheet(path); err == nil {
		t.Error("non-numeric factor accepted")
	}
}
