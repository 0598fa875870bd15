package naming

import (
	"fmt"
	"strings"
)

// Validation is the outcome of ValidatePattern.
type Validation struct {
	Valid            bool     `json:"valid"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	UsedPlaceholders []string `json:"used_placeholders"`
}

// ValidatePattern checks every placeholder of pattern against the num token
// and the given abbreviations. All problems are collected.
func ValidatePattern(pattern string, abbreviations []string) Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}, UsedPlaceholders: []string{}}

	if strings.TrimSpace(pattern) == "" {
		v.Errors = append(v.Errors, "naming pattern cannot be empty")
		return v
	}
	if strings.TrimSpace(pattern) != pattern {
		v.Warnings = append(v.Warnings, "naming pattern has leading or trailing whitespace")
	}

	known := make(map[string]bool, len(abbreviations)+1)
	known[NumToken] = true
	for _, a := range abbreviations {
		known[a] = true
	}

	placeholders := Extract(pattern)
	if len(placeholders) == 0 {
		v.Warnings = append(v.Warnings, "naming pattern has no placeholders, every generated name will be identical")
	}
	for _, p := range placeholders {
		v.UsedPlaceholders = append(v.UsedPlaceholders, p.Text)
		if !known[p.Token] {
			v.Errors = append(v.Errors, fmt.Sprintf("unknown placeholder %s: %q is not a field abbreviation", p.Text, p.Token))
		}
		if p.HasFormat {
			if err := ValidateFormat(p.Format); err != nil {
				v.Errors = append(v.Errors, fmt.Sprintf("placeholder %s: %v", p.Text, err))
			}
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// ValidateFormat reports whether s is a well-formed FORMAT.
func ValidateFormat(s string) error {
	f := ParseFormat(s)
	if !f.Valid {
		return fmt.Errorf("invalid number format %q, expected something like d, 03d or 2d1", f.Number)
	}
	return nil
}
