package sse

import "time"

// EventType identifies the kind of SSE event.
type EventType string

// Event types sent to connected clients.
const (
	EventConnected    EventType = "connected"
	EventHeartbeat    EventType = "heartbeat"
	EventFilesChanged EventType = "files.changed"
)

// Event is a single SSE payload.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	}
}

// NewFilesChangedEvent creates a files-changed event carrying the journal
// entry recorded for this notification.
func NewFilesChangedEvent(data any) Event {
	return Event{
		Type:      EventFilesChanged,
		Timestamp: time.Now(),
		Data:      data,
	}
}
