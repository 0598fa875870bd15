package engine

import (
	"errors"
	"fmt"
	"strings"

	"canforge/config"
	"canforge/layout"
	"canforge/logging"
)

// fieldEdit transforms a copy of the field list. i is the index of the field
// the edit targets.
type fieldEdit func(fields []layout.Field, i int, frame layout.Frame) ([]layout.Field, error)

// editField applies edit to the named field under the config lock. Nothing is
// stored unless edit succeeds.
func (e *Engine) editField(name string, edit fieldEdit) error {
	e.cfg.Lock()
	i := layout.FindField(e.cfg.Fields, name)
	if i < 0 {
		e.cfg.Unlock()
		return fmt.Errorf("%w: field '%s'", ErrNotFound, name)
	}
	fields, err := edit(e.cfg.Fields, i, e.cfg.Frame)
	if err != nil {
		e.cfg.Unlock()
		return invalidInput(err)
	}
	e.cfg.Fields = fields
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// invalidInput wraps layout validation failures in ErrInvalidInput and passes
// engine sentinels through.
func invalidInput(err error) error {
	var ve *layout.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}

// ListFields returns a copy of the field layout.
func (e *Engine) ListFields() []layout.Field {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	return layout.CloneFields(e.cfg.Fields)
}

// GetField returns a copy of the named field.
func (e *Engine) GetField(name string) (layout.Field, error) {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	f := e.cfg.FindField(name)
	if f == nil {
		return layout.Field{}, fmt.Errorf("%w: field '%s'", ErrNotFound, name)
	}
	return f.Clone(), nil
}

// CreateField validates and appends a field, then saves the project.
func (e *Engine) CreateField(req FieldCreateRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	f := config.FieldConfig{
		Name:         name,
		Abbreviation: strings.TrimSpace(req.Abbreviation),
		Bits:         req.Bits,
		Segments:     req.Segments,
		Kind:         req.Kind,
		Default:      req.Default,
		BatchRange:   req.BatchRange,
		Source:       req.Source,
		Description:  req.Description,
	}

	e.cfg.Lock()
	if e.cfg.FindField(name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: field '%s'", ErrAlreadyExists, name)
	}
	fields, err := layout.AddField(e.cfg.Fields, f, e.cfg.Frame)
	if err != nil {
		e.cfg.Unlock()
		return invalidInput(err)
	}
	e.cfg.Fields = fields
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	logging.DebugLog(logging.CatEngine, "field %s created", name)
	e.emit(EventFieldCreated, FieldEvent{Name: name})
	return nil
}

// UpdateField applies every non-nil member of req to the named field. When
// req renames the field, events carry the new name.
func (e *Engine) UpdateField(name string, req FieldUpdateRequest) error {
	newName := name
	err := e.editField(name, func(fields []layout.Field, i int, frame layout.Frame) ([]layout.Field, error) {
		out := layout.CloneFields(fields)
		var err error
		if req.Name != nil {
			n := strings.TrimSpace(*req.Name)
			if j := layout.FindField(out, n); j >= 0 && j != i {
				return nil, fmt.Errorf("%w: field '%s'", ErrAlreadyExists, n)
			}
			if out, err = layout.Rename(out, i, n); err != nil {
				return nil, err
			}
			newName = out[i].Name
		}
		if req.Abbreviation != nil {
			if out, err = layout.SetAbbreviation(out, i, *req.Abbreviation); err != nil {
				return nil, err
			}
		}
		if req.Bits != nil {
			if out, err = layout.SetBits(out, i, *req.Bits, frame); err != nil {
				return nil, err
			}
		}
		if req.Batch != nil {
			if out, err = layout.SetBatch(out, i, *req.Batch); err != nil {
				return nil, err
			}
		}
		if req.BatchMin != nil {
			if out, err = layout.SetBatchBound(out, i, layout.BoundMin, *req.BatchMin); err != nil {
				return nil, err
			}
		}
		if req.BatchMax != nil {
			if out, err = layout.SetBatchBound(out, i, layout.BoundMax, *req.BatchMax); err != nil {
				return nil, err
			}
		}
		if req.Default != nil {
			if out, err = layout.SetDefault(out, i, *req.Default); err != nil {
				return nil, err
			}
		}
		if req.Description != nil {
			out[i].Description = *req.Description
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	e.emit(EventFieldUpdated, FieldEvent{Name: newName})
	return nil
}

// DeleteField removes a field from the layout.
func (e *Engine) DeleteField(name string) error {
	err := e.editField(name, func(fields []layout.Field, i int, _ layout.Frame) ([]layout.Field, error) {
		return layout.RemoveField(fields, i)
	})
	if err != nil {
		return err
	}

	e.emit(EventFieldDeleted, FieldEvent{Name: name})
	return nil
}

// UpdateSegment replaces segment index of the named field.
func (e *Engine) UpdateSegment(name string, index int, seg layout.Segment) error {
	err := e.editField(name, func(fields []layout.Field, i int, frame layout.Frame) ([]layout.Field, error) {
		return layout.UpdateSegment(fields, i, index, seg, frame)
	})
	if err != nil {
		return err
	}

	e.emit(EventFieldUpdated, FieldEvent{Name: name})
	return nil
}

// AddSegment appends a one-bit segment to the named field.
func (e *Engine) AddSegment(name string) error {
	err := e.editField(name, func(fields []layout.Field, i int, frame layout.Frame) ([]layout.Field, error) {
		return layout.AddSegment(fields, i, frame)
	})
	if err != nil {
		return err
	}

	e.emit(EventFieldUpdated, FieldEvent{Name: name})
	return nil
}

// RemoveSegment deletes segment index of the named field.
func (e *Engine) RemoveSegment(name string, index int) error {
	err := e.editField(name, func(fields []layout.Field, i int, _ layout.Frame) ([]layout.Field, error) {
		return layout.RemoveSegment(fields, i, index)
	})
	if err != nil {
		return err
	}

	e.emit(EventFieldUpdated, FieldEvent{Name: name})
	return nil
}

// ArrangeFields repacks every field into one contiguous segment, widest first.
func (e *Engine) ArrangeFields() error {
	e.cfg.Lock()
	e.cfg.Fields = layout.AutoArrange(e.cfg.Fields, e.cfg.Frame)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventFieldsArranged, ProjectEvent{Detail: "auto-arrange"})
	return nil
}

// LoadPreset replaces the whole field layout and frame with a named preset.
func (e *Engine) LoadPreset(name string) error {
	p, ok := layout.LookupPreset(name)
	if !ok {
		return fmt.Errorf("%w: preset '%s' (available: %s)", ErrNotFound, name, strings.Join(layout.PresetNames(), ", "))
	}

	e.cfg.Lock()
	e.cfg.Frame = p.Frame
	e.cfg.Fields = p.Fields()
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.logFn("Loaded preset %s (%s frame)", p.Name, p.Frame)
	e.emit(EventPresetLoaded, ProjectEvent{Detail: p.Name})
	return nil
}

// SetFrame switches between standard and extended identifiers. Fields are
// kept as they are; segments that no longer fit show up in Validate.
func (e *Engine) SetFrame(frame string) error {
	f, err := layout.ParseFrame(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.cfg.Lock()
	if e.cfg.Frame == f {
		e.cfg.Unlock()
		return nil
	}
	e.cfg.Frame = f
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventFrameChanged, ProjectEvent{Detail: f.String()})
	return nil
}
