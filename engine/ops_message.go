package engine

import (
	"fmt"
	"strings"

	"canforge/config"
	"canforge/message"
)

// ListMessages returns a copy of the message templates.
func (e *Engine) ListMessages() []message.Template {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	out := make([]message.Template, len(e.cfg.Messages))
	for i, m := range e.cfg.Messages {
		out[i] = m.Clone()
	}
	return out
}

// GetMessage returns a copy of the named template.
func (e *Engine) GetMessage(name string) (message.Template, error) {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	m := e.cfg.FindMessage(name)
	if m == nil {
		return message.Template{}, fmt.Errorf("%w: message '%s'", ErrNotFound, name)
	}
	return m.Clone(), nil
}

func buildTemplate(name string, req MessageRequest) (config.MessageConfig, error) {
	t := config.MessageConfig{
		Name:          strings.TrimSpace(name),
		Length:        req.Length,
		Node:          strings.TrimSpace(req.Node),
		FunctionCode:  req.FunctionCode,
		NamingPattern: req.NamingPattern,
		Description:   req.Description,
		Signals:       append([]message.Signal(nil), req.Signals...),
	}
	if t.Length == 0 {
		t.Length = message.MaxLength
	}
	if t.FunctionCode < 0 {
		return t, fmt.Errorf("%w: function code must not be negative", ErrInvalidInput)
	}
	for i := range t.Signals {
		if t.Signals[i].Factor == 0 {
			t.Signals[i].Factor = 1
		}
		if t.Signals[i].ByteOrder == "" {
			t.Signals[i].ByteOrder = message.Intel
		}
	}
	if issues := message.Validate(t); len(issues) > 0 {
		return t, issuesError(issues)
	}
	return t, nil
}

func issuesError(issues []message.Issue) error {
	msgs := make([]string, len(issues))
	for i, is := range issues {
		msgs[i] = is.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

// CreateMessage validates and adds a message template.
func (e *Engine) CreateMessage(name string, req MessageRequest) error {
	t, err := buildTemplate(name, req)
	if err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindMessage(t.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s'", ErrAlreadyExists, t.Name)
	}
	e.cfg.AddMessage(t)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventMessageCreated, MessageEvent{Name: t.Name})
	return nil
}

// UpdateMessage replaces an existing template.
func (e *Engine) UpdateMessage(name string, req MessageRequest) error {
	t, err := buildTemplate(name, req)
	if err != nil {
		return err
	}

	e.cfg.Lock()
	if !e.cfg.UpdateMessage(name, t) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s'", ErrNotFound, name)
	}
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventMessageUpdated, MessageEvent{Name: name})
	return nil
}

// DeleteMessage removes a template.
func (e *Engine) DeleteMessage(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveMessage(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s'", ErrNotFound, name)
	}
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventMessageDeleted, MessageEvent{Name: name})
	return nil
}

// AddSignal appends a signal to the named template, starting after the last
// existing signal. A nil sig appends an 8-bit raw signal named after its
// position. The stored signal is returned.
func (e *Engine) AddSignal(name string, sig *message.Signal) (message.Signal, error) {
	e.cfg.Lock()
	m := e.cfg.FindMessage(name)
	if m == nil {
		e.cfg.Unlock()
		return message.Signal{}, fmt.Errorf("%w: message '%s'", ErrNotFound, name)
	}

	var s message.Signal
	if sig != nil {
		s = *sig
	} else {
		s = message.Signal{Name: fmt.Sprintf("Signal%d", len(m.Signals)+1), Length: 8, Max: 255}
	}
	s.StartBit = message.NextStartBit(*m)
	if s.Length == 0 {
		s.Length = 8
	}
	if s.Factor == 0 {
		s.Factor = 1
	}
	if s.ByteOrder == "" {
		s.ByteOrder = message.Intel
	}

	t := m.Clone()
	t.Signals = append(t.Signals, s)
	if issues := message.Validate(t); len(issues) > 0 {
		e.cfg.Unlock()
		return message.Signal{}, issuesError(issues)
	}
	*m = t
	if err := e.saveConfig(); err != nil {
		return message.Signal{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventMessageUpdated, MessageEvent{Name: name})
	return s, nil
}

// RemoveSignal deletes signal index of the named template. The last signal
// cannot be removed.
func (e *Engine) RemoveSignal(name string, index int) error {
	e.cfg.Lock()
	m := e.cfg.FindMessage(name)
	if m == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s'", ErrNotFound, name)
	}
	if index < 0 || index >= len(m.Signals) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s' has no signal %d", ErrNotFound, name, index)
	}
	if len(m.Signals) == 1 {
		e.cfg.Unlock()
		return fmt.Errorf("%w: message '%s' must keep at least one signal", ErrInvalidInput, name)
	}
	m.Signals = append(m.Signals[:index:index], m.Signals[index+1:]...)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventMessageUpdated, MessageEvent{Name: name})
	return nil
}

// ImportMessages reads templates from an xlsx sheet. Templates whose name
// already exists are replaced. Nothing is stored if any imported template is
// invalid.
func (e *Engine) ImportMessages(path string) (int, error) {
	templates, err := message.ImportSheet(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, t := range templates {
		if issues := message.Validate(t); len(issues) > 0 {
			return 0, fmt.Errorf("%w: message '%s': %s", ErrInvalidInput, t.Name, issues[0].Message)
		}
	}

	e.cfg.Lock()
	for _, t := range templates {
		if !e.cfg.UpdateMessage(t.Name, t) {
			e.cfg.AddMessage(t)
		}
	}
	if err := e.saveConfig(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.logFn("Imported %d message template(s) from %s", len(templates), path)
	e.emit(EventMessagesImported, ProjectEvent{Detail: path})
	return len(templates), nil
}

// ExportMessages writes the templates to an xlsx sheet.
func (e *Engine) ExportMessages(path string) error {
	return message.ExportSheet(path, e.ListMessages())
}
