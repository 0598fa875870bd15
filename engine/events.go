package engine

import "time"

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Field events
	EventFieldCreated EventType = iota + 1
	EventFieldUpdated
	EventFieldDeleted
	EventFieldsArranged

	// Message template events
	EventMessageCreated
	EventMessageUpdated
	EventMessageDeleted

	// Project events
	EventFrameChanged
	EventPresetLoaded
	EventMessagesImported

	// Generation events
	EventGenerated
	EventExported
	EventPublished

	// Sink events
	EventSinkStarted
	EventSinkStopped
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// FieldEvent is the payload for field lifecycle events.
type FieldEvent struct {
	Name string `json:"name"`
}

// MessageEvent is the payload for message template events.
type MessageEvent struct {
	Name string `json:"name"`
}

// ProjectEvent is the payload for frame, preset and import events.
type ProjectEvent struct {
	Detail string `json:"detail"`
}

// GenerationEvent is the payload for generate/export events.
type GenerationEvent struct {
	Messages     int    `json:"messages"`
	Combinations uint64 `json:"combinations"`
	Path         string `json:"path,omitempty"` // export only, empty for in-memory exports
}

// PublishEvent is the payload for EventPublished.
type PublishEvent struct {
	Project   string `json:"project"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// ServiceEvent is the payload for MQTT/Valkey/Kafka lifecycle events.
type ServiceEvent struct {
	Kind string `json:"kind"` // "mqtt", "valkey", "kafka"
	Name string `json:"name"`
}

var eventNames = map[EventType]string{
	EventFieldCreated:     "field-created",
	EventFieldUpdated:     "field-updated",
	EventFieldDeleted:     "field-deleted",
	EventFieldsArranged:   "fields-arranged",
	EventMessageCreated:   "message-created",
	EventMessageUpdated:   "message-updated",
	EventMessageDeleted:   "message-deleted",
	EventFrameChanged:     "frame-changed",
	EventPresetLoaded:     "preset-loaded",
	EventMessagesImported: "messages-imported",
	EventGenerated:        "generated",
	EventExported:         "exported",
	EventPublished:        "published",
	EventSinkStarted:      "sink-started",
	EventSinkStopped:      "sink-stopped",
}

// String returns the event's wire name, as used by the REST event stream.
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}
