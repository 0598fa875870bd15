package dbc

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"canforge/layout"
	"canforge/message"
)

// header is everything up to and including the "BU_:" keyword.
const header = "VERSION \"\"\n\n\n" +
	"NS_ : \n" +
	"\tNS_DESC_\n" +
	"\tCM_\n" +
	"\tBA_DEF_\n" +
	"\tBA_\n" +
	"\tVAL_\n" +
	"\tCAT_DEF_\n" +
	"\tCAT_\n" +
	"\tFILTER\n" +
	"\tBA_DEF_DEF_\n" +
	"\tEV_DATA_\n" +
	"\tENVVAR_DATA_\n" +
	"\tSGTYPE_\n" +
	"\tSGTYPE_VAL_\n" +
	"\tBA_DEF_SGTYPE_\n" +
	"\tSIG_VALTYPE_\n" +
	"\tBA_SGTYPE_\n" +
	"\tSIG_GROUP_\n" +
	"\tSIGTYPE_VALTYPE_\n" +
	"\tBO_TX_BU_\n" +
	"\tBA_DEF_REL_\n" +
	"\tBA_REL_\n" +
	"\tBA_DEF_DEF_REL_\n" +
	"\tBU_SG_REL_\n" +
	"\tBU_EV_REL_\n" +
	"\tBU_BO_REL_\n" +
	"\tSG_MUL_VAL_\n" +
	"\n" +
	"BS_:\n" +
	"\n" +
	"BU_:"

// extendedFlag marks an extended identifier in BO_ lines.
const extendedFlag = 0x80000000

// Encode returns the DBC text for msgs.
func Encode(msgs []message.Generated, frame layout.Frame) string {
	var b strings.Builder
	writeTo(&b, msgs, frame)
	return b.String()
}

// Write encodes msgs to w.
func Write(w io.Writer, msgs []message.Generated, frame layout.Frame) error {
	_, err := io.WriteString(w, Encode(msgs, frame))
	return err
}

// MessageID returns the identifier as it appears in BO_ and CM_ lines.
func MessageID(id uint32, frame layout.Frame) uint32 {
	id = min(id, layout.MaxExtendedID)
	if frame.IsExtended() {
		id |= extendedFlag
	}
	return id
}

func writeTo(b *strings.Builder, msgs []message.Generated, frame layout.Frame) {
	b.WriteString(header)

	var nodes []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if m.Node == "" {
			continue
		}
		n := Identifier(m.Node)
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	if len(nodes) > 0 {
		b.WriteString(" " + strings.Join(nodes, " "))
	}
	b.WriteString("\n\n")

	for _, m := range msgs {
		node := Identifier(m.Node)
		fmt.Fprintf(b, "BO_ %d %s: %d %s\n", MessageID(m.ID, frame), Identifier(m.Name), clampUint(m.Length, 1, 8), node)
		for _, s := range m.Signals {
			writeSignal(b, s, node)
		}
		b.WriteString("\n")
	}

	for _, m := range msgs {
		id := MessageID(m.ID, frame)
		for _, s := range m.Signals {
			desc := QuotedString(s.Description)
			if desc == "" {
				continue
			}
			fmt.Fprintf(b, "CM_ SG_ %d %s \"%s\";\n", id, Identifier(s.Name), desc)
		}
	}
}

func writeSignal(b *strings.Builder, s message.Signal, node string) {
	order := "1"
	if s.ByteOrder == message.Motorola {
		order = "0"
	}
	sign := "+"
	if s.Signed {
		sign = "-"
	}
	factor := clampFloat(s.Factor)
	if factor == 0 {
		factor = 1
	}
	fmt.Fprintf(b, " SG_ %s : %d|%d@%s%s (%s,%s) [%s|%s] \"%s\" %s\n",
		Identifier(s.Name),
		clampUint(s.StartBit, 0, 63),
		clampUint(s.Length, 1, 64),
		order, sign,
		number(factor), number(clampFloat(s.Offset)),
		number(clampFloat(s.Min)), number(clampFloat(s.Max)),
		QuotedString(s.Unit),
		node,
	)
}

func number(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clampUint(v, lo, hi uint) uint {
	return max(lo, min(v, hi))
}

// clampFloat bounds v to ±1e10. NaN becomes 0.
func clampFloat(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1e10, math.Min(v, 1e10))
}
