package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/internal/model"
)

func TestStream_DeliversInOrder(t *testing.T) {
	s := NewStream(0)

	go func() {
		defer s.Close()
		s.Emit(model.StatusEvent("a"))
		s.Emit(model.TokenEvent("b"))
		s.Emit(model.EndEvent())
	}()

	var got []model.EventType
	for ev := range s.Events() {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []model.EventType{model.EventTypeStatus, model.EventTypeToken, model.EventTypeEnd}, got)
}

func TestStream_DetachedEmitDoesNotBlock(t *testing.T) {
	s := NewStream(1)
	s.Emit(model.StatusEvent("buffered"))
	s.Detach()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Emit(model.TokenEvent("dropped"))
		}
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked after detach")
	}

	ev, ok := <-s.Events()
	require.True(t, ok)
	assert.Equal(t, "buffered", ev.Content)
	_, ok = <-s.Events()
	assert.False(t, ok)

	// Idempotent.
	s.Detach()
	s.Close()
}
