// Package message defines signals, message templates and generated messages.
package message

import (
	"fmt"
	"strings"

	"go.einride.tech/can"

	"canforge/layout"
)

// ByteOrder of a signal inside the payload.
type ByteOrder string

const (
	Intel    ByteOrder = "intel"    // little endian, DBC '1'
	Motorola ByteOrder = "motorola" // big endian, DBC '0'
)

// ParseByteOrder accepts intel/lsb/little and motorola/msb/big.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "intel", "lsb", "little", "little_endian", "1":
		return Intel, nil
	case "motorola", "msb", "big", "big_endian", "0":
		return Motorola, nil
	}
	return "", fmt.Errorf("unknown byte order %q", s)
}

// Signal is one payload value of a message.
type Signal struct {
	Name        string    `yaml:"name" json:"name"`
	StartBit    uint      `yaml:"start_bit" json:"start_bit"`
	Length      uint      `yaml:"length" json:"length"`
	Signed      bool      `yaml:"signed,omitempty" json:"signed"`
	ByteOrder   ByteOrder `yaml:"byte_order,omitempty" json:"byte_order,omitempty"`
	Factor      float64   `yaml:"factor" json:"factor"`
	Offset      float64   `yaml:"offset" json:"offset"`
	Min         float64   `yaml:"min" json:"min"`
	Max         float64   `yaml:"max" json:"max"`
	Unit        string    `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// Template describes a message that generation instantiates once per
// combination of batch values.
type Template struct {
	Name          string   `yaml:"name" json:"name"`
	Length        uint     `yaml:"length" json:"length"`
	Node          string   `yaml:"node,omitempty" json:"node,omitempty"`
	FunctionCode  int64    `yaml:"function_code" json:"function_code"`
	NamingPattern string   `yaml:"naming_pattern,omitempty" json:"naming_pattern,omitempty"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Signals       []Signal `yaml:"signals" json:"signals"`
}

// Pattern returns the naming pattern, defaulting to "<name>_{num}_Data".
func (t Template) Pattern() string {
	if t.NamingPattern != "" {
		return t.NamingPattern
	}
	return t.Name + "_{num}_Data"
}

// Clone returns a deep copy.
func (t Template) Clone() Template {
	c := t
	c.Signals = append([]Signal(nil), t.Signals...)
	return c
}

// Generated is a concrete message produced by a generation run.
type Generated struct {
	ID          uint32   `json:"id"`
	Name        string   `json:"name"`
	Length      uint     `json:"length"`
	Node        string   `json:"node"`
	Description string   `json:"description,omitempty"`
	Signals     []Signal `json:"signals"`
}

// Frame builds an empty CAN frame for the message and validates its id and
// length against the frame format.
func (g Generated) Frame(frame layout.Frame) (can.Frame, error) {
	f := can.Frame{
		ID:         g.ID,
		Length:     uint8(min(g.Length, 255)),
		IsExtended: frame.IsExtended(),
	}
	if err := f.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("message %s: %w", g.Name, err)
	}
	return f, nil
}

// DefaultSignal is the single raw byte emitted for a new template.
func DefaultSignal() Signal {
	return Signal{
		Name:        "Data1",
		StartBit:    0,
		Length:      8,
		ByteOrder:   Intel,
		Factor:      1,
		Max:         255,
		Description: "Raw data",
	}
}

// DefaultTemplate returns the template a new project starts with.
func DefaultTemplate() Template {
	return Template{
		Name:         "Channel_Data",
		Length:       8,
		Node:         "ECU1",
		FunctionCode: 0,
		Description:  "Data acquisition message",
		Signals:      []Signal{DefaultSignal()},
	}
}
