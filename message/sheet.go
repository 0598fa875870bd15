package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet columns, matched case-insensitively against the header row.
var sheetColumns = []string{
	"message", "length", "node", "function_code", "naming_pattern", "message_description",
	"signal", "start_bit", "bit_length", "signed", "byte_order",
	"factor", "offset", "min", "max", "unit", "description",
}

// ImportSheet reads message templates from the first sheet of an xlsx
// workbook. Each row holds one signal; rows sharing a message name are grouped
// into one template in first-seen order. Message columns are taken from the
// first row of each message.
func ImportSheet(path string) ([]Template, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s has no data rows", sheets[0])
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(strings.ReplaceAll(h, " ", "_")))] = i
	}
	if _, ok := col["message"]; !ok {
		return nil, fmt.Errorf("sheet %s: missing %q column", sheets[0], "message")
	}

	var (
		out   []Template
		index = make(map[string]int)
	)
	for r, row := range rows[1:] {
		line := r + 2
		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		name := cell("message")
		if name == "" {
			continue
		}
		ti, seen := index[name]
		if !seen {
			t := Template{Name: name, Length: 8, Node: cell("node"), NamingPattern: cell("naming_pattern"),
				Description: cell("message_description")}
			if v := cell("length"); v != "" {
				n, err := strconv.ParseUint(v, 10, 8)
				if err != nil {
					return nil, fmt.Errorf("row %d: length %q: %w", line, v, err)
				}
				t.Length = uint(n)
			}
			if v := cell("function_code"); v != "" {
				n, err := strconv.ParseInt(v, 0, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: function code %q: %w", line, v, err)
				}
				t.FunctionCode = n
			}
			out = append(out, t)
			ti = len(out) - 1
			index[name] = ti
		}

		sigName := cell("signal")
		if sigName == "" {
			continue
		}
		s, err := parseSignalRow(sigName, cell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out[ti].Signals = append(out[ti].Signals, s)
	}
	return out, nil
}

func parseSignalRow(name string, cell func(string) string) (Signal, error) {
	s := Signal{Name: name, Length: 8, Factor: 1, Unit: cell("unit"), Description: cell("description")}

	uints := []struct {
		col string
		dst *uint
	}{{"start_bit", &s.StartBit}, {"bit_length", &s.Length}}
	for _, u := range uints {
		if v := cell(u.col); v != "" {
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return s, fmt.Errorf("%s %q: %w", u.col, v, err)
			}
			*u.dst = uint(n)
		}
	}

	floats := []struct {
		col string
		dst *float64
	}{{"factor", &s.Factor}, {"offset", &s.Offset}, {"min", &s.Min}, {"max", &s.Max}}
	for _, fl := range floats {
		if v := cell(fl.col); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return s, fmt.Errorf("%s %q: %w", fl.col, v, err)
			}
			*fl.dst = n
		}
	}
	if cell("max") == "" && s.Length < 64 {
		s.Max = float64(uint64(1)<<s.Length - 1)
	}

	switch strings.ToLower(cell("signed")) {
	case "", "0", "false", "no", "unsigned", "+":
	case "1", "true", "yes", "signed", "-":
		s.Signed = true
	default:
		return s, fmt.Errorf("signed %q: expected true or false", cell("signed"))
	}

	bo, err := ParseByteOrder(cell("byte_order"))
	if err != nil {
		return s, err
	}
	s.ByteOrder = bo
	return s, nil
}

// ExportSheet writes templates to an xlsx workbook in the layout ImportSheet
// reads.
func ExportSheet(path string, templates []Template) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]interface{}, len(sheetColumns))
	for i, c := range sheetColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, t := range templates {
		signals := t.Signals
		if len(signals) == 0 {
			signals = []Signal{{}}
		}
		for _, s := range signals {
			values := []interface{}{
				t.Name, t.Length, t.Node, t.FunctionCode, t.NamingPattern, t.Description,
				s.Name, s.StartBit, s.Length, s.Signed, string(s.ByteOrder),
				s.Factor, s.Offset, s.Min, s.Max, s.Unit, s.Description,
			}
			cellRef, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cellRef, &values); err != nil {
				return err
			}
			row++
		}
	}
	return f.SaveAs(path)
}
