package batch

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"canforge/layout"
	"canforge/message"
	"canforge/naming"
)

const (
	// DefaultThreshold is the total above which generation needs confirmation.
	DefaultThreshold = 100
	// MaxMessages bounds a single run even when it was confirmed.
	MaxMessages = 1 << 20
)

var (
	ErrConflicts            = errors.New("layout has conflicts")
	ErrNoTemplates          = errors.New("no message templates")
	ErrNoBatchFields        = errors.New("no batch combinations")
	ErrInvalidPattern       = errors.New("invalid naming pattern")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrTooLarge             = errors.New("generation too large")
	ErrInvalidTemplate      = errors.New("invalid message template")
	ErrInvalidFrame         = errors.New("invalid CAN frame")
)

// ConflictError carries the violations that blocked generation.
type ConflictError struct {
	Violations []layout.Violation
}

func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%v: %s", ErrConflicts, strings.Join(msgs, "; "))
}

func (e *ConflictError) Unwrap() error { return ErrConflicts }

// SizeWarning reports a generation run above the confirmation threshold.
type SizeWarning struct {
	Combinations uint64 `json:"combinations"`
	Templates    int    `json:"templates"`
	Total        uint64 `json:"total"`
	Threshold    uint64 `json:"threshold"`
}

func (w *SizeWarning) Error() string {
	return fmt.Sprintf("%v: %d messages (%d combinations x %d templates) exceeds %d",
		ErrConfirmationRequired, w.Total, w.Combinations, w.Templates, w.Threshold)
}

func (w *SizeWarning) Unwrap() error { return ErrConfirmationRequired }

// Guard decides when a run needs explicit confirmation.
type Guard struct {
	Threshold uint64
}

// Check returns a *SizeWarning when combinations*templates exceeds the
// threshold. A zero threshold uses DefaultThreshold.
func (g Guard) Check(combinations uint64, templates int) error {
	threshold := g.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	total := mulSat(combinations, uint64(templates))
	if total > threshold {
		return &SizeWarning{Combinations: combinations, Templates: templates, Total: total, Threshold: threshold}
	}
	return nil
}

// Request is one generation run.
type Request struct {
	Fields    []layout.Field
	Frame     layout.Frame
	Templates []message.Template
	Confirm   bool
	Threshold uint64
}

// Summary sizes a run without generating it.
type Summary struct {
	BatchFields       int    `json:"batch_fields"`
	Combinations      uint64 `json:"combinations"`
	Templates         int    `json:"templates"`
	Total             uint64 `json:"total"`
	Threshold         uint64 `json:"threshold"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
}

// Plan returns the size summary of req.
func Plan(req Request) Summary {
	dims := BatchFields(req.Fields)
	combos := Count(dims)
	s := Summary{
		BatchFields:  len(dims),
		Combinations: combos,
		Templates:    len(req.Templates),
		Total:        mulSat(combos, uint64(len(req.Templates))),
		Threshold:    req.Threshold,
	}
	if s.Threshold == 0 {
		s.Threshold = DefaultThreshold
	}
	s.NeedsConfirmation = s.Total > s.Threshold
	return s
}

// Result is the output of a generation run.
type Result struct {
	Messages     []message.Generated `json:"messages"`
	Combinations uint64              `json:"combinations"`
	Total        uint64              `json:"total"`
}

// Generate produces one message per (combination, template) pair,
// combination-major. All checks run before any message is built.
func Generate(req Request) (*Result, error) {
	if vs := layout.Validate(req.Fields, req.Frame); len(vs) > 0 {
		return nil, &ConflictError{Violations: vs}
	}
	if len(req.Templates) == 0 {
		return nil, ErrNoTemplates
	}
	dims := BatchFields(req.Fields)
	combos := Count(dims)
	if combos == 0 {
		return nil, ErrNoBatchFields
	}

	abbrs := layout.Abbreviations(req.Fields)
	var patternErrs []string
	for _, t := range req.Templates {
		v := naming.ValidatePattern(t.Pattern(), abbrs)
		for _, e := range v.Errors {
			patternErrs = append(patternErrs, t.Name+": "+e)
		}
	}
	if len(patternErrs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, strings.Join(patternErrs, "; "))
	}

	var templateErrs []string
	for _, t := range req.Templates {
		for _, is := range message.Validate(t) {
			templateErrs = append(templateErrs, t.Name+": "+is.Message)
		}
	}
	if len(templateErrs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(templateErrs, "; "))
	}

	total := mulSat(combos, uint64(len(req.Templates)))
	if total > MaxMessages {
		return nil, fmt.Errorf("%w: %d messages, limit is %d", ErrTooLarge, total, MaxMessages)
	}
	if !req.Confirm {
		if err := (Guard{Threshold: req.Threshold}).Check(combos, len(req.Templates)); err != nil {
			return nil, err
		}
	}

	res := &Result{Combinations: combos, Total: total, Messages: make([]message.Generated, 0, total)}

	index := 0
	counter := NewCounter(dims)
	for combo, ok := counter.Next(); ok; combo, ok = counter.Next() {
		for _, t := range req.Templates {
			ctx := combo.Context(t.FunctionCode)
			g := instantiate(t, req.Fields, req.Frame, ctx, index)
			if _, err := g.Frame(req.Frame); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
			}
			res.Messages = append(res.Messages, g)
			index++
		}
	}
	return res, nil
}

// Fallback builds one message per template with every field at its default
// value and the template name unchanged. It is the export of a project that
// has not been generated.
func Fallback(fields []layout.Field, frame layout.Frame, templates []message.Template) []message.Generated {
	out := make([]message.Generated, 0, len(templates))
	for _, t := range templates {
		ctx := layout.Context{FunctionCode: t.FunctionCode}
		out = append(out, message.Generated{
			ID:          layout.ComposeID(fields, frame, ctx),
			Name:        t.Name,
			Length:      t.Length,
			Node:        t.Node,
			Description: t.Description,
			Signals:     append([]message.Signal(nil), t.Signals...),
		})
	}
	return out
}

func instantiate(t message.Template, fields []layout.Field, frame layout.Frame, ctx layout.Context, index int) message.Generated {
	scope := naming.Scope{Fields: fields, Context: ctx, Index: index}
	signals := make([]message.Signal, len(t.Signals))
	for i, s := range t.Signals {
		if s.Name != "" {
			s.Name = naming.Render(s.Name, scope)
		}
		signals[i] = s
	}
	return message.Generated{
		ID:          layout.ComposeID(fields, frame, ctx),
		Name:        naming.Render(t.Pattern(), scope),
		Length:      t.Length,
		Node:        t.Node,
		Description: t.Description,
		Signals:     signals,
	}
}

func mulSat(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
