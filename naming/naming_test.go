package naming

import (
	"strings"
	"testing"

	"canforge/layout"
)

func fields() []layout.Field {
	return []layout.Field{
		{Name: "Channel", Abbreviation: "CH", Bits: 8, Segments: []layout.Segment{{Position: 12, Bits: 8}}, Kind: layout.KindBatch, Default: 1},
		{Name: "Function Code", Abbreviation: "FC", Bits: 4, Segments: []layout.Segment{{Position: 8, Bits: 4}}, Kind: layout.KindSystemManaged, Source: layout.SourceFunctionCode},
		{Name: "Device", Abbreviation: "DEV", Bits: 2, Segments: []layout.Segment{{Position: 0, Bits: 2}}, Kind: layout.KindFixed, Default: 2},
	}
}

func TestRender(t *testing.T) {
	scope := Scope{
		Fields:  fields(),
		Context: layout.Context{Batch: map[int]int64{0: 7}, FunctionCode: 3},
		Index:   2,
	}
	tests := []struct {
		pattern string
		want    string
	}{
		{"CH{CH:03d}_{num}", "CH007_2"},
		{"{CH:ID_:04d:_END}", "ID_0007_END"},
		{"{CH:2d1}", "070"},
		{"{CH:P:d}", "P7"},
		{"{CH:d:S}", "7S"},
		{"{FC}_{DEV}", "3_2"},
		{"{XX}_{num}", "{XX}_2"},
		{"{CH:bad}", "7"},
		{"{CH:a:b:c:d}", "7"},
		{"{CH:}", "{CH:}"},
		{"{ CH }", "{ CH }"},
		{"{num:02d}{num}", "022"},
		{"plain", "plain"},
		{"", "Message_2"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := Render(tt.pattern, scope); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestRenderPrefixSuffix(t *testing.T) {
	scope := Scope{Fields: fields(), Context: layout.Context{Batch: map[int]int64{0: 5}}}
	if got := Render("{CH:ID_:04d:_END}", scope); got != "ID_0005_END" {
		t.Errorf("got %q", got)
	}
}

func TestRenderClampsToFieldWidth(t *testing.T) {
	scope := Scope{Fields: fields(), Context: layout.Context{FunctionCode: 99}}
	if got := Render("{FC}", scope); got != "15" {
		t.Errorf("Render = %q, want 15", got)
	}
}

func TestRenderNumWinsOverAbbreviation(t *testing.T) {
	fs := []layout.Field{{Name: "n", Abbreviation: "num", Bits: 4, Kind: layout.KindFixed, Default: 9}}
	if got := Render("{num}", Scope{Fields: fs, Index: 1}); got != "1" {
		t.Errorf("Render = %q, want 1", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in                     string
		prefix, number, suffix string
		leading, trailing      int
		valid                  bool
	}{
		{"03d", "", "03d", "", 3, 0, true},
		{"d", "", "d", "", 0, 0, true},
		{"2d2", "", "2d2", "", 2, 2, true},
		{"ID_:04d", "ID_", "04d", "", 4, 0, true},
		{"04d:_END", "", "04d", "_END", 4, 0, true},
		{"A:3d:B", "A", "3d", "B", 3, 0, true},
		{"x", "", "x", "", 0, 0, false},
		{"", "", "", "", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f := ParseFormat(tt.in)
			if f.Prefix != tt.prefix || f.Number != tt.number || f.Suffix != tt.suffix {
				t.Errorf("parts = (%q,%q,%q)", f.Prefix, f.Number, f.Suffix)
			}
			if f.Leading != tt.leading || f.Trailing != tt.trailing || f.Valid != tt.valid {
				t.Errorf("format = %+v", f)
			}
		})
	}
}

func TestValidatePattern(t *testing.T) {
	abbrs := layout.Abbreviations(fields())

	v := ValidatePattern("{XX}", abbrs)
	if v.Valid {
		t.Fatal("unknown token accepted")
	}
	if len(v.Errors) != 1 || !strings.Contains(v.Errors[0], "XX") {
		t.Errorf("errors = %v, want one naming XX", v.Errors)
	}

	v = ValidatePattern("{XX}_{YY:zz}", abbrs)
	if len(v.Errors) != 3 {
		t.Errorf("errors = %v, want 3 collected", v.Errors)
	}

	v = ValidatePattern("CH{CH:03d}_{num}", abbrs)
	if !v.Valid || len(v.Warnings) != 0 {
		t.Errorf("valid pattern: %+v", v)
	}
	if len(v.UsedPlaceholders) != 2 || v.UsedPlaceholders[0] != "{CH:03d}" {
		t.Errorf("used = %v", v.UsedPlaceholders)
	}

	v = ValidatePattern("Fixed_Name", abbrs)
	if !v.Valid || len(v.Warnings) != 1 {
		t.Errorf("no placeholders: %+v", v)
	}

	v = ValidatePattern(" {num} ", abbrs)
	if !v.Valid || len(v.Warnings) != 1 {
		t.Errorf("whitespace: %+v", v)
	}

	v = ValidatePattern("   ", abbrs)
	if v.Valid || len(v.Errors) != 1 {
		t.Errorf("empty: %+v", v)
	}

	v = ValidatePattern("{CH:}", abbrs)
	if v.Valid {
		t.Error("empty format accepted")
	}

	v = ValidatePattern("{ CH }", abbrs)
	if v.Valid || len(v.Errors) != 1 {
		t.Errorf("padded token accepted: %+v", v)
	}
}

func TestExamples(t *testing.T) {
	got := Examples("CH{CH}_{num}", fields(), 0, 3)
	want := []string{"CH0_0", "CH0_1", "CH0_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Examples[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
