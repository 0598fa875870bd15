package engine

import (
	"canforge/layout"
	"canforge/message"
)

// FieldCreateRequest holds the fields for adding an identifier field. With no
// Segments, the field gets one segment of Bits width at the highest free run.
type FieldCreateRequest struct {
	Name         string           `json:"name"`
	Abbreviation string           `json:"abbreviation,omitempty"`
	Bits         uint             `json:"bits"`
	Segments     []layout.Segment `json:"segments,omitempty"`
	Kind         layout.Kind      `json:"kind,omitempty"`
	Default      int64            `json:"default"`
	BatchRange   *layout.Range    `json:"batch_range,omitempty"`
	Source       string           `json:"source,omitempty"`
	Description  string           `json:"description,omitempty"`
}

// FieldUpdateRequest holds a partial field update. Nil members are left
// unchanged. The edits are applied in declaration order on a copy and the
// whole update is rejected if any one of them fails.
type FieldUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Abbreviation *string `json:"abbreviation,omitempty"`
	Bits         *uint   `json:"bits,omitempty"`
	Batch        *bool   `json:"batch,omitempty"`
	BatchMin     *int64  `json:"batch_min,omitempty"`
	BatchMax     *int64  `json:"batch_max,omitempty"`
	Default      *int64  `json:"default,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// MessageRequest holds the fields for creating or replacing a message template.
type MessageRequest struct {
	Length        uint             `json:"length"`
	Node          string           `json:"node,omitempty"`
	FunctionCode  int64            `json:"function_code"`
	NamingPattern string           `json:"naming_pattern,omitempty"`
	Description   string           `json:"description,omitempty"`
	Signals       []message.Signal `json:"signals"`
}

// GenerateRequest asks for a generation run. Confirm acknowledges a run above
// the project's confirmation threshold.
type GenerateRequest struct {
	Confirm bool `json:"confirm"`
}
