// Package nats carries report events and scan requests over NATS JetStream
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

var errNotConnected = errors.New("not connected to NATS")

// StreamConfig describes a stream. Zero limits fall back to defaults.
type StreamConfig struct {
	Name        string
	Subjects    []string
	MaxMsgs     int64
	MaxBytes    int64
	MaxAge      time.Duration
	Replicas    int
	Description string
	// WorkQueue removes each message once a consumer acknowledges it
	WorkQueue bool
}

// Client is a JetStream connection shared by publishers and consumers
type Client struct {
	mu     sync.RWMutex
	nc     *nats.Conn
	js     jetstream.JetStream
	closed bool
}

// NewClient dials url. The name identifies the connection on the server
// and defaults to "ecocode".
func NewClient(url, name string) (*Client, error) {
	if name == "" {
		name = "ecocode"
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info().Str("url", url).Str("name", name).Msg("connected to NATS JetStream")
	return &Client{nc: nc, js: js}, nil
}

// JetStream returns the JetStream context, nil when never connected
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// Conn returns the underlying NATS connection
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil || c.closed {
		return nil, errNotConnected
	}
	return c.js, nil
}

// CreateStream creates the stream or updates it in place
func (c *Client) CreateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstreamConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	log.Debug().Str("stream", cfg.Name).Strs("subjects", cfg.Subjects).Msg("stream ready")
	return stream, nil
}

func jetstreamConfig(cfg StreamConfig) jetstream.StreamConfig {
	out := jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Description: cfg.Description,
		MaxMsgs:     orDefault(cfg.MaxMsgs, 100000),
		MaxBytes:    orDefault(cfg.MaxBytes, 100<<20),
		MaxAge:      orDefault(cfg.MaxAge, 7*24*time.Hour),
		Replicas:    orDefault(cfg.Replicas, 1),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
	}
	if cfg.WorkQueue {
		out.Retention = jetstream.WorkQueuePolicy
	}
	return out
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v == 0 {
		return def
	}
	return v
}

// CreateConsumer creates a durable pull consumer with explicit acks
func (c *Client) CreateConsumer(ctx context.Context, streamName, consumerName, filterSubject string) (jetstream.Consumer, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	log.Debug().
		Str("stream", streamName).
		Str("consumer", consumerName).
		Str("filter", filterSubject).
		Msg("consumer ready")

	return consumer, nil
}

// Publish sends data on subject and waits for the stream ack
func (c *Client) Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	ack, err := js.Publish(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return ack, nil
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	return c.HealthCheck() == nil
}

// HealthCheck returns an error unless the connection is up
func (c *Client) HealthCheck() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.nc == nil || !c.nc.IsConnected() {
		return errNotConnected
	}
	return nil
}

// Close closes the connection. Later calls are no-ops.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.nc != nil {
		c.nc.Close()
		log.Info().Msg("NATS connection closed")
	}
}
