// Package remotequeue implements worker.RemoteDispatcher over a Pulse/Redis
// stream, the remote dispatch transport anticipated by SPEC_FULL.md's
// domain stack: dispatching with mode=remote enqueues a message on a stream
// keyed by worker id, which an out-of-process worker consumer reads and
// executes against.
package remotequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/agentmesh/router/worker"
)

// Client is the subset of the Pulse streaming API needed by Transport.
type Client interface {
	Stream(ctx context.Context, name string, opts ...streamopts.Stream) (*streaming.Stream, error)
}

// Options configures a Transport.
type Options struct {
	// Client is the Pulse client used to publish dispatch messages. Required.
	Client Client
	// StreamName derives the Pulse stream name a worker's dispatches are
	// published to. Defaults to "router/worker/<workerID>".
	StreamName func(workerID string) string
}

// Transport implements worker.RemoteDispatcher by publishing a Dispatch
// message onto a per-worker Pulse stream.
type Transport struct {
	client     Client
	streamName func(workerID string) string
}

var _ worker.RemoteDispatcher = (*Transport)(nil)

// Message is the wire payload published to the Pulse stream for a single
// dispatch, consumed by an out-of-process worker runner.
type Message struct {
	JobID      string          `json:"jobId"`
	WorkerID   string          `json:"workerId"`
	Input      json.RawMessage `json:"input"`
	WebhookURL string          `json:"webhookUrl,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// New constructs a Transport. opts.Client is required.
func New(opts Options) (*Transport, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("remotequeue: client is required")
	}
	name := opts.StreamName
	if name == nil {
		name = defaultStreamName
	}
	return &Transport{client: opts.Client, streamName: name}, nil
}

// Enqueue implements worker.RemoteDispatcher.
func (t *Transport) Enqueue(ctx context.Context, workerID, jobID string, input json.RawMessage, webhookURL string) error {
	name := t.streamName(workerID)
	handle, err := t.client.Stream(ctx, name)
	if err != nil {
		return fmt.Errorf("remotequeue: open stream %q: %w", name, err)
	}
	payload, err := json.Marshal(Message{
		JobID:      jobID,
		WorkerID:   workerID,
		Input:      input,
		WebhookURL: webhookURL,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("remotequeue: marshal dispatch message: %w", err)
	}
	if _, err := handle.Add(ctx, "dispatch", payload); err != nil {
		return fmt.Errorf("remotequeue: publish to stream %q: %w", name, err)
	}
	return nil
}

func defaultStreamName(workerID string) string {
	return fmt.Sprintf("router/worker/%s", workerID)
}

// Consumer reads Messages published by a Transport and invokes fn for each
// one, acknowledging the Pulse sink entry only after fn returns without
// error. This is the out-of-process half of remote dispatch: a worker
// process runs a Consumer per worker id it hosts.
type Consumer struct {
	client     Client
	streamName func(workerID string) string
}

// NewConsumer constructs a Consumer sharing Transport's stream-naming
// convention.
func NewConsumer(opts Options) (*Consumer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("remotequeue: client is required")
	}
	name := opts.StreamName
	if name == nil {
		name = defaultStreamName
	}
	return &Consumer{client: opts.Client, streamName: name}, nil
}

// Run opens a Pulse sink on workerID's stream and invokes fn for every
// dispatch Message until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, workerID, sinkName string, fn func(context.Context, Message) error) error {
	name := c.streamName(workerID)
	s, err := c.client.Stream(ctx, name)
	if err != nil {
		return fmt.Errorf("remotequeue: open stream %q: %w", name, err)
	}
	sink, err := s.NewSink(ctx, sinkName)
	if err != nil {
		return fmt.Errorf("remotequeue: open sink %q on %q: %w", sinkName, name, err)
	}
	defer sink.Close(context.Background())

	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(ev.Payload, &msg); err != nil {
				_ = sink.Ack(ctx, ev)
				continue
			}
			if err := fn(ctx, msg); err != nil {
				continue
			}
			_ = sink.Ack(ctx, ev)
		}
	}
}
