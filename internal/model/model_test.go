package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLog_AppendDoesNotAlias(t *testing.T) {
	base := NewMessageLog(Message{ID: "1", Sender: SenderUser, Content: "hello"})

	a := base.Append(Message{ID: "2a", Sender: SenderAgent, Content: "from a"})
	b := base.Append(Message{ID: "2b", Sender: SenderAgent, Content: "from b"})

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "2a", a.At(1).ID)
	assert.Equal(t, "2b", b.At(1).ID)

	items := a.Items()
	items[0].Content = "mutated"
	assert.Equal(t, "hello", a.At(0).Content)
}

func TestMessageLog_Since(t *testing.T) {
	log := NewMessageLog(
		Message{ID: "1"},
		Message{ID: "2"},
		Message{ID: "3"},
	)

	assert.Len(t, log.Since(1), 2)
	assert.Nil(t, log.Since(3))
	assert.Len(t, log.Since(-1), 3)

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, "3", last.ID)

	_, ok = MessageLog{}.Last()
	assert.False(t, ok)
}

func TestMessageLog_JSON(t *testing.T) {
	st := AgentState{
		ThreadID: "t",
		Messages: NewMessageLog(Message{ID: "1", Sender: SenderUser, Content: "hi", CreatedAt: time.Unix(10, 0).UTC()}),
	}

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message_history":[{"id":"1"`)

	var decoded AgentState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Messages.Len())
	assert.Equal(t, "hi", decoded.Messages.At(0).Content)

	empty, err := json.Marshal(AgentState{})
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"message_history":[]`)
}

func TestTicketStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketOpen, TicketPendingHuman, true},
		{TicketOpen, TicketResolved, true},
		{TicketPendingHuman, TicketResolved, true},
		{TicketPendingHuman, TicketOpen, false},
		{TicketResolved, TicketPendingHuman, false},
		{TicketResolved, TicketOpen, false},
		{TicketPendingHuman, TicketPendingHuman, false},
		{TicketStatus("bogus"), TicketResolved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()
	e := &CacheEntry{WrittenAt: now.Add(-2 * time.Hour), TTL: time.Hour}
	assert.True(t, e.Expired(now))

	e.TTL = 0
	assert.False(t, e.Expired(now))
}
