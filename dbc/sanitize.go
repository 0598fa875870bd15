// Package dbc serializes generated messages into DBC text.
package dbc

import (
	"regexp"
	"strings"
)

var (
	identRe      = regexp.MustCompile(`[^A-Za-z0-9_]`)
	whitespaceRe = regexp.MustCompile(`[\r\n\t]`)
)

// Identifier makes s a valid DBC identifier.
func Identifier(s string) string {
	if s == "" {
		return "DefaultName"
	}
	s = identRe.ReplaceAllString(s, "_")
	if c := s[0]; !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
		s = "_" + s
	}
	return s
}

// QuotedString escapes s for use between double quotes.
func QuotedString(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
