package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// PulseClient is the subset of the Pulse streaming API needed by PulseSink.
// Callers typically obtain one from streaming.NewSink/streaming.NewStream
// against a *redis.Client; see goa.design/pulse/streaming.
type PulseClient interface {
	// Stream returns a handle to the named Pulse stream, creating it if needed.
	Stream(ctx context.Context, name string, opts ...streamopts.Stream) (*streaming.Stream, error)
}

// PulseSinkOptions configures a PulseSink.
type PulseSinkOptions struct {
	// Client is the Pulse client used to publish Parts. Required.
	Client PulseClient
	// StreamName derives the Pulse stream name a Part is published to.
	// Defaults to "router/session/<SessionID>". The session id is the one
	// passed to NewPulseSink, since Part itself carries no session id.
	StreamName func(sessionID string, part Part) string
}

// PulseSink is a Sink that republishes Parts onto a Pulse/Redis stream so
// out-of-process consumers (SSE/WebSocket front-ends that did not originate
// the `handle` call) can fan out the same Stream. This is the "remote
// variant" of the Stream Writer anticipated by SPEC_FULL.md's domain stack:
// Worker dispatch already crosses process boundaries over Pulse/Redis;
// PulseSink gives the Stream Writer the same option.
type PulseSink struct {
	client      PulseClient
	sessionID   string
	streamName  func(sessionID string, part Part) string
}

// NewPulseSink constructs a PulseSink bound to a single session. opts.Client
// is required.
func NewPulseSink(sessionID string, opts PulseSinkOptions) (*PulseSink, error) {
	if opts.Client == nil {
		return nil, errors.New("stream: pulse client is required")
	}
	name := opts.StreamName
	if name == nil {
		name = defaultPulseStreamName
	}
	return &PulseSink{client: opts.Client, sessionID: sessionID, streamName: name}, nil
}

// pulseEnvelope is the wire record published to the Pulse stream.
type pulseEnvelope struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Part      Part      `json:"part"`
}

// Send publishes part to the session's Pulse stream.
func (s *PulseSink) Send(ctx context.Context, part Part) error {
	name := s.streamName(s.sessionID, part)
	handle, err := s.client.Stream(ctx, name)
	if err != nil {
		return fmt.Errorf("stream: open pulse stream %q: %w", name, err)
	}
	payload, err := json.Marshal(pulseEnvelope{
		SessionID: s.sessionID,
		Timestamp: time.Now().UTC(),
		Part:      part,
	})
	if err != nil {
		return fmt.Errorf("stream: marshal pulse envelope: %w", err)
	}
	_, err = handle.Add(ctx, part.WireType(), payload)
	if err != nil {
		return fmt.Errorf("stream: publish to pulse stream %q: %w", name, err)
	}
	return nil
}

// Close is a no-op: the Pulse stream itself is long-lived and outlives any
// single Stream writer; callers own the underlying Redis client's lifecycle.
func (s *PulseSink) Close(ctx context.Context) error { return nil }

func defaultPulseStreamName(sessionID string, _ Part) string {
	return fmt.Sprintf("router/session/%s", sessionID)
}
