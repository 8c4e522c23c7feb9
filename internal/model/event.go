package model

import (
	"time"
)

// EventType represents the type of a streamed run event.
type EventType string

const (
	EventTypeStatus     EventType = "status"
	EventTypeToken      EventType = "token"
	EventTypeEscalation EventType = "escalation"
	EventTypeError      EventType = "error"
	EventTypeEnd        EventType = "end"
)

// Event is one frame of a run's ordered event stream.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// StatusEvent reports the phase a run is in.
func StatusEvent(phase string) Event {
	return Event{Type: EventTypeStatus, Content: phase}
}

// TokenEvent carries an answer fragment.
func TokenEvent(fragment string) Event {
	return Event{Type: EventTypeToken, Content: fragment}
}

// EscalationEvent carries the bridge message.
func EscalationEvent(bridge string) Event {
	return Event{Type: EventTypeEscalation, Content: bridge}
}

// ErrorEvent carries the apology shown when a run fails.
func ErrorEvent(apology string) Event {
	return Event{Type: EventTypeError, Content: apology}
}

// EndEvent is always the final event of a run.
func EndEvent() Event {
	return Event{Type: EventTypeEnd}
}

// SendMessageRequest is the request to post a user utterance.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// HeartbeatEvent keeps a replay stream alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorBody is the JSON body of an error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
