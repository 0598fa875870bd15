package layout

import "sort"

// Preset is a named starting layout.
type Preset struct {
	Name        string
	Description string
	Frame       Frame
	Fields      func() []Field
}

func seg(pos, bits uint) Segment { return Segment{Position: pos, Bits: bits} }

func fixed(name, abbr string, bits uint, def int64, segs ...Segment) Field {
	return Field{Name: name, Abbreviation: abbr, Bits: bits, Segments: segs, Kind: KindFixed, Default: def}
}

func batchField(name, abbr string, bits uint, def, min, max int64, segs ...Segment) Field {
	return Field{Name: name, Abbreviation: abbr, Bits: bits, Segments: segs, Kind: KindBatch, Default: def,
		BatchRange: &Range{Min: min, Max: max}}
}

func functionCode(bits uint, segs ...Segment) Field {
	return Field{Name: "Function Code", Abbreviation: "FC", Bits: bits, Segments: segs,
		Kind: KindSystemManaged, Source: SourceFunctionCode}
}

var presets = map[string]Preset{
	"default": {
		Name:        "default",
		Description: "board type, channel, function code, board and box number",
		Frame:       FrameExtended,
		Fields: func() []Field {
			return []Field{
				fixed("Board Type", "BT", 4, 0, seg(20, 4)),
				batchField("Channel", "CH", 8, 0, 0, 15, seg(12, 8)),
				functionCode(4, seg(8, 4)),
				fixed("Board Number", "BN", 5, 0, seg(3, 5)),
				fixed("Box Number", "BOX", 3, 0, seg(0, 3)),
			}
		},
	},
	"simple": {
		Name:        "simple",
		Description: "channel, function code and device id",
		Frame:       FrameExtended,
		Fields: func() []Field {
			return []Field{
				batchField("Channel", "CH", 8, 0, 0, 31, seg(16, 8)),
				functionCode(8, seg(8, 8)),
				fixed("Device ID", "DEV", 8, 1, seg(0, 8)),
			}
		},
	},
	"split_channel": {
		Name:        "split_channel",
		Description: "channel and function code split across disjoint segments",
		Frame:       FrameExtended,
		Fields: func() []Field {
			return []Field{
				fixed("Board Type", "BT", 3, 0, seg(26, 3)),
				batchField("Channel", "CH", 8, 1, 1, 50, seg(23, 3), seg(5, 5)),
				functionCode(6, seg(16, 4), seg(10, 2)),
				fixed("Device ID", "DEV", 5, 1, seg(0, 5)),
			}
		},
	},
	"standard_simple": {
		Name:        "standard_simple",
		Description: "11-bit channel, function code and device id",
		Frame:       FrameStandard,
		Fields: func() []Field {
			return []Field{
				batchField("Channel", "CH", 6, 0, 0, 63, seg(5, 6)),
				functionCode(3, seg(2, 3)),
				fixed("Device ID", "DEV", 2, 1, seg(0, 2)),
			}
		},
	},
	"standard_detailed": {
		Name:        "standard_detailed",
		Description: "11-bit board type, channel, function code and box number",
		Frame:       FrameStandard,
		Fields: func() []Field {
			return []Field{
				fixed("Board Type", "BT", 2, 0, seg(9, 2)),
				batchField("Channel", "CH", 5, 0, 0, 31, seg(4, 5)),
				functionCode(3, seg(1, 3)),
				fixed("Box Number", "BOX", 1, 0, seg(0, 1)),
			}
		},
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames lists the available presets alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
