// Package naming renders {TOKEN} and {TOKEN:FORMAT} placeholders in message
// naming patterns.
package naming

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderRe  = regexp.MustCompile(`\{([^}]+)\}`)
	numberFormatRe = regexp.MustCompile(`^(\d*)d(\d*)$`)
)

// maxDigits caps padding so a pattern cannot request unbounded output.
const maxDigits = 64

// NumToken is the placeholder bound to the running generation index.
const NumToken = "num"

// Placeholder is one {…} occurrence in a pattern.
type Placeholder struct {
	Text   string // full text including braces
	Token  string
	Format string // raw text after the first ':'
	// HasFormat is set when the placeholder contains a ':'.
	HasFormat bool
}

// Extract returns every placeholder in pattern in order of appearance.
func Extract(pattern string) []Placeholder {
	matches := placeholderRe.FindAllStringSubmatch(pattern, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		out = append(out, parsePlaceholder(m[0], m[1]))
	}
	return out
}

func parsePlaceholder(text, inner string) Placeholder {
	token, format, found := strings.Cut(inner, ":")
	return Placeholder{Text: text, Token: token, Format: format, HasFormat: found}
}

// Format is a parsed FORMAT specification.
type Format struct {
	Prefix   string
	Number   string
	Suffix   string
	Leading  int // pad width
	Trailing int // zeros appended
	// Valid reports whether Number matched the number format grammar.
	Valid bool
}

// ParseFormat splits a FORMAT string into prefix, number format and suffix.
// Two parts are (prefix, number) when the second is a number format and
// (number, suffix) otherwise. More than three parts never form a valid format.
func ParseFormat(s string) Format {
	parts := strings.Split(s, ":")
	var f Format
	switch len(parts) {
	case 1:
		f.Number = parts[0]
	case 2:
		if numberFormatRe.MatchString(parts[1]) {
			f.Prefix, f.Number = parts[0], parts[1]
		} else {
			f.Number, f.Suffix = parts[0], parts[1]
		}
	case 3:
		f.Prefix, f.Number, f.Suffix = parts[0], parts[1], parts[2]
	default:
		f.Number = s
	}

	m := numberFormatRe.FindStringSubmatch(f.Number)
	if m == nil {
		return f
	}
	f.Valid = true
	f.Leading, _ = strconv.Atoi(m[1])
	f.Trailing, _ = strconv.Atoi(m[2])
	f.Leading = min(f.Leading, maxDigits)
	f.Trailing = min(f.Trailing, maxDigits)
	return f
}

// Apply formats value. An invalid number format yields prefix+value+suffix.
func (f Format) Apply(value uint64) string {
	s := strconv.FormatUint(value, 10)
	if f.Valid {
		if pad := f.Leading - len(s); pad > 0 {
			s = strings.Repeat("0", pad) + s
		}
		if f.Trailing > 0 {
			s += strings.Repeat("0", f.Trailing)
		}
	}
	return f.Prefix + s + f.Suffix
}
