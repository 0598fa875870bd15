package dbc

import (
	"github.com/cockroachdb/errors"
	cdbc "go.einride.tech/can/pkg/dbc"
)

// Report summarizes a parsed DBC file.
type Report struct {
	Messages int      `json:"messages"`
	Signals  int      `json:"signals"`
	Nodes    []string `json:"nodes"`
}

// Lint parses text with the can-go DBC parser.
func Lint(name string, text string) (*Report, error) {
	parser := cdbc.NewParser(name, []byte(text))
	if err := parser.Parse(); err != nil {
		return nil, errors.Wrap(err, "parse dbc")
	}

	r := &Report{}
	for _, def := range parser.File().Defs {
		switch d := def.(type) {
		case *cdbc.MessageDef:
			r.Messages++
			r.Signals += len(d.Signals)
		case *cdbc.NodesDef:
			for _, n := range d.NodeNames {
				r.Nodes = append(r.Nodes, string(n))
			}
		}
	}
	return r, nil
}
