// Package model defines data structures for the support agent.
package model

import (
	"encoding/json"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// Turn is one persisted message in the History Store.
type Turn struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	TenantID   string    `json:"tenant_id"`
	SequenceNo uint64    `json:"sequence_no"`
	Sender     Sender    `json:"sender"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is an entry of the checkpointed conversation log.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn converts the message into a history turn for the given thread.
// The sequence number is assigned by the History Store.
func (m Message) Turn(tenantID, threadID string) Turn {
	return Turn{
		ID:        m.ID,
		ThreadID:  threadID,
		TenantID:  tenantID,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// MessageLog is an ordered, append-only sequence of messages.
//
// Append never mutates the receiver's backing array, so two states that
// share a log never observe each other's appends.
type MessageLog struct {
	items []Message
}

// NewMessageLog builds a log from the given messages.
func NewMessageLog(msgs ...Message) MessageLog {
	items := make([]Message, len(msgs))
	copy(items, msgs)
	return MessageLog{items: items}
}

// Append returns a new log with m added at the end.
func (l MessageLog) Append(m Message) MessageLog {
	items := make([]Message, len(l.items)+1)
	copy(items, l.items)
	items[len(l.items)] = m
	return MessageLog{items: items}
}

// Len returns the number of messages.
func (l MessageLog) Len() int {
	return len(l.items)
}

// At returns the i-th message.
func (l MessageLog) At(i int) Message {
	return l.items[i]
}

// Last returns the most recent message.
func (l MessageLog) Last() (Message, bool) {
	if len(l.items) == 0 {
		return Message{}, false
	}
	return l.items[len(l.items)-1], true
}

// Since returns a copy of the messages from index i onwards.
func (l MessageLog) Since(i int) []Message {
	if i < 0 {
		i = 0
	}
	if i >= len(l.items) {
		return nil
	}
	out := make([]Message, len(l.items)-i)
	copy(out, l.items[i:])
	return out
}

// Items returns a copy of all messages.
func (l MessageLog) Items() []Message {
	return l.Since(0)
}

// MarshalJSON encodes the log as a plain array.
func (l MessageLog) MarshalJSON() ([]byte, error) {
	if l.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.items)
}

// UnmarshalJSON decodes a plain array into the log.
func (l *MessageLog) UnmarshalJSON(data []byte) error {
	var items []Message
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	l.items = items
	return nil
}

// ListTurnsResponse is the response for listing a thread's history.
type ListTurnsResponse struct {
	Turns        []Turn `json:"turns"`
	LastSequence uint64 `json:"last_sequence"`
}
