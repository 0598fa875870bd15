package naming

import (
	"strconv"

	"canforge/layout"
)

type tokenKind uint8

const (
	tokenNum tokenKind = iota
	tokenField
)

// token is the resolved meaning of a placeholder name.
type token struct {
	kind  tokenKind
	field int // index into Scope.Fields when kind == tokenField
}

// Scope carries everything a placeholder can resolve against.
type Scope struct {
	Fields  []layout.Field
	Context layout.Context
	Index   int
}

// table maps placeholder names to tokens. "num" always wins, then the first
// field declaring an abbreviation.
func table(fields []layout.Field) map[string]token {
	t := make(map[string]token, len(fields)+1)
	t[NumToken] = token{kind: tokenNum}
	for i, f := range fields {
		a := f.Abbrev()
		if _, ok := t[a]; !ok {
			t[a] = token{kind: tokenField, field: i}
		}
	}
	return t
}

// Render substitutes every placeholder in pattern. Unknown tokens and
// placeholders with an empty format are left as written. An empty pattern renders "Message_<index>".
func Render(pattern string, s Scope) string {
	if pattern == "" {
		return "Message_" + strconv.Itoa(s.Index)
	}
	tokens := table(s.Fields)
	return placeholderRe.ReplaceAllStringFunc(pattern, func(text string) string {
		p := parsePlaceholder(text, text[1:len(text)-1])
		tok, ok := tokens[p.Token]
		if !ok || (p.HasFormat && p.Format == "") {
			return text
		}
		var v uint64
		switch tok.kind {
		case tokenNum:
			if s.Index > 0 {
				v = uint64(s.Index)
			}
		case tokenField:
			f := s.Fields[tok.field]
			v = uint64(layout.ResolveFieldValue(f, tok.field, s.Context))
		}
		if !p.HasFormat {
			return strconv.FormatUint(v, 10)
		}
		return ParseFormat(p.Format).Apply(v)
	})
}

// Examples renders pattern for the first n indexes with batch fields at their
// range minimum and the given function code.
func Examples(pattern string, fields []layout.Field, functionCode int64, n int) []string {
	ctx := layout.Context{Batch: make(map[int]int64), FunctionCode: functionCode}
	for i, f := range fields {
		if f.IsBatch() {
			ctx.Batch[i] = f.Range().Min
		}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = Render(pattern, Scope{Fields: fields, Context: ctx, Index: i})
	}
	return out
}
