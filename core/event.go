package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the external pipeline input vocabulary: a console line, a chat
// message, a timer tick, or a follow-up emitted by a reaction/maintenance
// handler. Every event becomes exactly one ingestion pass.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Source    string         `json:"source,omitempty"`
	StreamID  string         `json:"streamId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and UTC timestamp.
func NewEvent(topic, source string) Event {
	return Event{
		ID:        NewID(),
		Topic:     topic,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// WithStream returns a copy of the event targeted at the given stream.
func (e Event) WithStream(streamID string) Event {
	e.StreamID = streamID
	return e
}

// WithPayload returns a copy of the event carrying the given payload.
func (e Event) WithPayload(payload map[string]any) Event {
	e.Payload = payload
	return e
}

// NewID generates a new unique identifier for events and facets.
func NewID() string { return uuid.NewString() }
