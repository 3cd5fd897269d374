// Package items defines the wire contract for item domain events and check requests.
package items

import (
	"time"

	"github.com/ortelius/versionwatch/model"
)

// SchemaVersion is stamped on every published event.
const SchemaVersion = "v1"

// ItemEvent is the envelope published for every domain event raised by a check.
type ItemEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	Item ItemRef `json:"item"`

	Payload model.EventPayload `json:"payload"`
}

// ItemRef identifies the item the event is about.
type ItemRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
	Purl string `json:"purl,omitempty"`
}

// CheckRequestedEvent asks a worker to check one item.
type CheckRequestedEvent struct {
	EventType string    `json:"event_type,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	EventTime time.Time `json:"event_time,omitempty"`

	model.CheckRequest
}
