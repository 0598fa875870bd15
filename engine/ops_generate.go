package engine

import (
	"fmt"
	"os"
	"time"

	"canforge/batch"
	"canforge/dbc"
	"canforge/layout"
	"canforge/logging"
	"canforge/message"
	"canforge/naming"
)

// previewExamples is the number of naming examples in a preview.
const previewExamples = 3

// ValidationReport describes everything that would block or degrade a
// generation run.
type ValidationReport struct {
	Valid      bool                         `json:"valid"`
	Frame      layout.Frame                 `json:"frame"`
	Width      uint                         `json:"width"`
	UsedBits   int                          `json:"used_bits"`
	Violations []layout.Violation           `json:"violations"`
	Patterns   map[string]naming.Validation `json:"patterns"`
	Messages   map[string][]message.Issue   `json:"messages,omitempty"`
	Summary    batch.Summary                `json:"summary"`
	Warnings   []string                     `json:"warnings,omitempty"`
}

// FieldValue is one field's contribution to a preview identifier.
type FieldValue struct {
	Name         string             `json:"name"`
	Abbreviation string             `json:"abbreviation"`
	Value        uint32             `json:"value"`
	Placements   []layout.Placement `json:"placements"`
}

// MessagePreview is a template's identifier with every field at its default.
type MessagePreview struct {
	Message  string       `json:"message"`
	ID       uint32       `json:"id"`
	Hex      string       `json:"hex"`
	Binary   string       `json:"binary"`
	Fields   []FieldValue `json:"fields"`
	Pattern  string       `json:"pattern"`
	Examples []string     `json:"examples"`
	Warning  string       `json:"warning,omitempty"`
}

// functionCodeWarning describes a template function code that the layout
// cannot carry. Such codes are clamped when identifiers are composed.
func functionCodeWarning(t message.Template, fields []layout.Field) string {
	max := layout.FunctionCodeMax(fields)
	if t.FunctionCode <= int64(max) {
		return ""
	}
	return fmt.Sprintf("message %s: function code %d exceeds %d and is clamped", t.Name, t.FunctionCode, max)
}

// snapshot is a consistent copy of the inputs to a generation run.
type snapshot struct {
	name      string
	frame     layout.Frame
	threshold uint64
	fields    []layout.Field
	templates []message.Template
}

func (e *Engine) snapshot() snapshot {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	s := snapshot{
		name:      e.cfg.ProjectName(),
		frame:     e.cfg.Frame,
		threshold: e.cfg.Threshold,
		fields:    layout.CloneFields(e.cfg.Fields),
		templates: make([]message.Template, len(e.cfg.Messages)),
	}
	for i, m := range e.cfg.Messages {
		s.templates[i] = m.Clone()
	}
	return s
}

func (s snapshot) request(confirm bool) batch.Request {
	return batch.Request{
		Fields:    s.fields,
		Frame:     s.frame,
		Templates: s.templates,
		Confirm:   confirm,
		Threshold: s.threshold,
	}
}

// Validate checks the layout, every naming pattern and every template.
func (e *Engine) Validate() ValidationReport {
	s := e.snapshot()

	r := ValidationReport{
		Frame:      s.frame,
		Width:      s.frame.Width(),
		Violations: layout.Validate(s.fields, s.frame),
		Patterns:   make(map[string]naming.Validation, len(s.templates)),
		Messages:   make(map[string][]message.Issue),
		Summary:    batch.Plan(s.request(false)),
	}
	for _, owner := range layout.UsedBits(s.fields, s.frame) {
		if owner >= 0 {
			r.UsedBits++
		}
	}

	abbrs := layout.Abbreviations(s.fields)
	r.Valid = len(r.Violations) == 0 && len(s.templates) > 0
	for _, t := range s.templates {
		v := naming.ValidatePattern(t.Pattern(), abbrs)
		r.Patterns[t.Name] = v
		if !v.Valid {
			r.Valid = false
		}
		if issues := message.Validate(t); len(issues) > 0 {
			r.Messages[t.Name] = issues
			r.Valid = false
		}
		if w := functionCodeWarning(t, s.fields); w != "" {
			r.Warnings = append(r.Warnings, w)
		}
	}
	return r
}

// Preview returns the default-valued identifier of the named template, or of
// every template when name is empty.
func (e *Engine) Preview(name string) ([]MessagePreview, error) {
	s := e.snapshot()

	templates := s.templates
	if name != "" {
		templates = nil
		for _, t := range s.templates {
			if t.Name == name {
				templates = append(templates, t)
				break
			}
		}
		if templates == nil {
			return nil, fmt.Errorf("%w: message '%s'", ErrNotFound, name)
		}
	}

	out := make([]MessagePreview, 0, len(templates))
	for _, t := range templates {
		ctx := layout.Context{FunctionCode: t.FunctionCode}
		id := layout.ComposeID(s.fields, s.frame, ctx)
		p := MessagePreview{
			Message:  t.Name,
			ID:       id,
			Hex:      layout.FormatHex(id, s.frame),
			Binary:   layout.FormatBinary(id, s.frame),
			Fields:   make([]FieldValue, len(s.fields)),
			Pattern:  t.Pattern(),
			Examples: naming.Examples(t.Pattern(), s.fields, t.FunctionCode, previewExamples),
			Warning:  functionCodeWarning(t, s.fields),
		}
		for i, f := range s.fields {
			v := layout.ResolveFieldValue(f, i, ctx)
			p.Fields[i] = FieldValue{Name: f.Name, Abbreviation: f.Abbrev(), Value: v, Placements: layout.Compose(f, v)}
		}
		out = append(out, p)
	}
	return out, nil
}

// ValidatePattern checks a naming pattern against the current abbreviations.
func (e *Engine) ValidatePattern(pattern string) naming.Validation {
	s := e.snapshot()
	return naming.ValidatePattern(pattern, layout.Abbreviations(s.fields))
}

// Summary sizes a generation run without running it.
func (e *Engine) Summary() batch.Summary {
	return batch.Plan(e.snapshot().request(false))
}

// Generate runs a generation and replaces the previous result on success.
// A run above the confirmation threshold fails with a *batch.SizeWarning
// unless req.Confirm is set.
func (e *Engine) Generate(req GenerateRequest) (*batch.Result, error) {
	s := e.snapshot()
	start := time.Now()

	res, err := batch.Generate(s.request(req.Confirm))
	if err != nil {
		logging.DebugError(logging.CatBatch, "generate", err)
		return nil, err
	}

	e.mu.Lock()
	e.last = res
	e.generatedAt = time.Now()
	e.mu.Unlock()

	logging.DebugLog(logging.CatBatch, "generated %d messages from %d combinations in %v",
		len(res.Messages), res.Combinations, time.Since(start))
	e.logFn("Generated %d messages (%d combinations x %d templates)", len(res.Messages), res.Combinations, len(s.templates))
	e.emit(EventGenerated, GenerationEvent{Messages: len(res.Messages), Combinations: res.Combinations})
	return res, nil
}

// Generated returns the last generation result and when it was produced.
func (e *Engine) Generated() (*batch.Result, time.Time, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return nil, time.Time{}, ErrNothingGenerated
	}
	return e.last, e.generatedAt, nil
}

// ClearGenerated drops the last generation result.
func (e *Engine) ClearGenerated() {
	e.mu.Lock()
	e.last = nil
	e.generatedAt = time.Time{}
	e.mu.Unlock()
}

// exportMessages returns the messages an export contains: the last run, or
// one default-valued message per template when nothing was generated.
func (e *Engine) exportMessages(s snapshot) ([]message.Generated, bool) {
	e.mu.RLock()
	last := e.last
	e.mu.RUnlock()
	if last != nil {
		return last.Messages, true
	}
	return batch.Fallback(s.fields, s.frame, s.templates), false
}

// Export serializes the current messages to DBC text.
func (e *Engine) Export() string {
	s := e.snapshot()
	msgs, _ := e.exportMessages(s)
	text := dbc.Encode(msgs, s.frame)

	logging.DebugLog(logging.CatDBC, "encoded %d messages (%d bytes)", len(msgs), len(text))
	e.emit(EventExported, GenerationEvent{Messages: len(msgs)})
	return text
}

// ExportTo writes the DBC text to path.
func (e *Engine) ExportTo(path string) (int, error) {
	s := e.snapshot()
	msgs, _ := e.exportMessages(s)

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	if err := dbc.Write(f, msgs, s.frame); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}

	e.logFn("Exported %d messages to %s", len(msgs), path)
	e.emit(EventExported, GenerationEvent{Messages: len(msgs), Path: path})
	return len(msgs), nil
}

// Lint checks every exported message is a valid CAN frame, then parses the
// current export back and reports what a DBC reader sees.
func (e *Engine) Lint() (*dbc.Report, error) {
	s := e.snapshot()
	msgs, _ := e.exportMessages(s)
	for _, m := range msgs {
		if _, err := m.Frame(s.frame); err != nil {
			return nil, fmt.Errorf("%w: %v", batch.ErrInvalidFrame, err)
		}
	}
	return dbc.Lint(s.name+".dbc", dbc.Encode(msgs, s.frame))
}
