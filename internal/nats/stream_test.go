package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/support-agent/pkg/logger"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "conv.t1.th1.turn", TurnSubject("t1", "th1"))
	assert.Equal(t, "notify.t1.ticket_resolved", NotifySubject("t1", KindTicketResolved))
}

func TestClient_PingWhenDisconnected(t *testing.T) {
	c := &Client{}
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Ping(context.Background()))
}

func TestOptions(t *testing.T) {
	log := logger.Nop()

	plain := options(Config{URL: "nats://localhost:4222"}, log)
	withToken := options(Config{URL: "nats://localhost:4222", Token: "s3cret"}, log)
	withTLS := options(Config{CAFile: "ca.pem", CertFile: "cert.pem", KeyFile: "key.pem"}, log)
	partialTLS := options(Config{CAFile: "ca.pem"}, log)

	assert.Len(t, withToken, len(plain)+1)
	assert.Len(t, withTLS, len(plain)+2)
	assert.Len(t, partialTLS, len(plain), "TLS needs all three files")
}
