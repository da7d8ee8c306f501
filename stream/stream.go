package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Write when the Stream has already been finalized
// by Finish or Fail.
var ErrClosed = errors.New("stream: write after finish")

type (
	// Sink delivers Parts to a transport (SSE, WebSocket, a Pulse/Redis stream,
	// or an in-memory buffer consumed by toAwaitResponse). Implementations must
	// be safe for concurrent use: a Stream may flush merged sub-stream output
	// from multiple goroutines.
	//
	// Naming note: Send belongs to the sink (the transmitter). A Stream
	// receives Parts from handler code and forwards them by invoking Sink.Send;
	// application code writing an agent handler does not call Send directly.
	Sink interface {
		// Send publishes a single Part. An error stops delivery to this sink;
		// the Stream that owns it is then in a failed state for that sink only.
		Send(ctx context.Context, part Part) error
		// Close releases sink resources. Close is idempotent and safe to call
		// multiple times; implementations should flush any buffered Parts
		// before ctx expires.
		Close(ctx context.Context) error
	}

	// Stream is an append-only sequence of Parts written by a single agent
	// handler invocation. A Stream is created per `handle`/`callAgent`
	// invocation (spec.md §3) and is safe for concurrent Write calls from a
	// handler and any merged sub-streams.
	Stream struct {
		mu     sync.Mutex
		sinks  []Sink
		closed bool
		// buf retains every Part written, so toAwaitResponse can materialize
		// the stream after the handler returns without a second consumer.
		buf []Part
	}
)

// New constructs an empty Stream that fans out every Write to sinks, in
// addition to buffering all Parts for later materialization
// (see Stream.Parts).
func New(sinks ...Sink) *Stream {
	return &Stream{sinks: sinks}
}

// AddSink attaches an additional sink to receive all future Parts. Parts
// already written are not replayed to the new sink; callers that need replay
// should read Stream.Parts and feed them to the sink themselves.
func (s *Stream) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Write appends part to the stream and forwards it to every attached sink in
// registration order. Write returns the first sink error encountered; callers
// (typically the Router) surface that as a failed handler per spec.md §4.1.
func (s *Stream) Write(ctx context.Context, part Part) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.buf = append(s.buf, part)
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Send(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

// WriteText is a convenience wrapper around Write for PartText deltas.
func (s *Stream) WriteText(ctx context.Context, messageID, text string) error {
	return s.Write(ctx, Text(messageID, text))
}

// WriteMessageMetadata is a convenience wrapper around Write for
// PartMessageMetadata parts, used by middlewares such as the chat-session
// restore middleware (spec.md §4.2) to publish a live "loader" string.
func (s *Stream) WriteMessageMetadata(ctx context.Context, messageID string, metadata map[string]any) error {
	return s.Write(ctx, MessageMetadata(messageID, metadata))
}

// Start writes the PartStart sentinel. Handlers do not call this directly;
// the Router writes it once per `handle` invocation before running the
// middleware chain.
func (s *Stream) Start(ctx context.Context, messageID string) error {
	return s.Write(ctx, Part{Type: PartStart, MessageID: messageID})
}

// Finish writes the terminal PartFinish sentinel and closes every attached
// sink. Finish is idempotent: calling it after the stream is already closed
// is a no-op and returns nil.
func (s *Stream) Finish(ctx context.Context, messageID string) error {
	return s.terminate(ctx, Part{Type: PartFinish, MessageID: messageID})
}

// Fail writes a terminal PartError with the given message (and, in
// development mode, stack) and closes every attached sink. Fail is what the
// Router calls when a handler or middleware panics or returns an error
// (spec.md §4.1 failure semantics); it never propagates the error to the
// caller of `handle`.
func (s *Stream) Fail(ctx context.Context, messageID, message, stack string) error {
	return s.terminate(ctx, Err(messageID, message, stack))
}

func (s *Stream) terminate(ctx context.Context, final Part) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = append(s.buf, final)
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	var firstErr error
	for _, sink := range sinks {
		if err := sink.Send(ctx, final); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, sink := range sinks {
		if err := sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Parts returns every Part written to the stream so far, in emission order.
// toAwaitResponse uses this to materialize a Stream into a single response
// payload once the handler chain has returned.
func (s *Stream) Parts() []Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Part, len(s.buf))
	copy(out, s.buf)
	return out
}

// Closed reports whether the stream has already been finalized.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Merge forwards every Part written to sub for the remainder of sub's
// lifetime into parent, preserving sub's internal emission order
// (spec.md §3, §5 ordering guarantees). It is how `callAgent(path, params,
// {streamToUI: true})` exposes a sub-agent's output through the caller's
// Stream. Merge does not forward sub's own PartStart/PartFinish sentinels,
// since those are internal to the sub-invocation's lifecycle, not the
// parent's.
func Merge(parent *Stream, sub *Stream) Sink {
	return &mergeSink{parent: parent}
}

type mergeSink struct{ parent *Stream }

func (m *mergeSink) Send(ctx context.Context, part Part) error {
	if part.Type == PartStart || part.Type == PartFinish {
		return nil
	}
	return m.parent.Write(ctx, part)
}

func (m *mergeSink) Close(ctx context.Context) error { return nil }
