// Package nats holds the JetStream connection, the conversation history
// stream and the resolution notifier.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/pkg/logger"
)

const clientName = "support-agent"

// Config holds NATS connection settings. TLS is enabled only when CAFile,
// CertFile and KeyFile are all set.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

func (c Config) tls() bool {
	return c.CAFile != "" && c.CertFile != "" && c.KeyFile != ""
}

// Client is a NATS connection with JetStream and the streams this service
// writes to already provisioned.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect dials NATS, then creates or updates the history and notification
// streams.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	nc, err := nats.Connect(cfg.URL, options(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c := &Client{conn: nc, js: js, logger: log}
	if err := c.EnsureStreams(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("connected to NATS",
		zap.String("url", nc.ConnectedUrl()),
		zap.Bool("tls", cfg.tls()),
	)
	return c, nil
}

func options(cfg Config, log *logger.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(clientName),
		// History appends must survive broker restarts.
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Error("NATS async error", zap.String("subject", sub.Subject), zap.Error(err))
				return
			}
			log.Error("NATS async error", zap.Error(err))
		}),
	}

	if cfg.tls() {
		opts = append(opts,
			nats.RootCAs(cfg.CAFile),
			nats.ClientCert(cfg.CertFile, cfg.KeyFile),
		)
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains pending publishes, falling back to a hard close.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping round-trips to the server, bounded by ctx or two seconds.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.New("nats: not connected")
	}
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return c.conn.FlushTimeout(timeout)
}
