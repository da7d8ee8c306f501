package stream_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/router/stream"
)

type bufSink struct {
	mu     sync.Mutex
	parts  []stream.Part
	closed bool
}

func (b *bufSink) Send(_ context.Context, p stream.Part) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parts = append(b.parts, p)
	return nil
}

func (b *bufSink) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestStreamEmitsStartTextFinishInOrder(t *testing.T) {
	sink := &bufSink{}
	s := stream.New(sink)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "m1"))
	require.NoError(t, s.WriteText(ctx, "m1", "a"))
	require.NoError(t, s.WriteText(ctx, "m1", "b"))
	require.NoError(t, s.Finish(ctx, "m1"))

	require.Len(t, sink.parts, 4)
	assert.Equal(t, stream.PartStart, sink.parts[0].Type)
	assert.Equal(t, "a", sink.parts[1].Text)
	assert.Equal(t, "b", sink.parts[2].Text)
	assert.Equal(t, stream.PartFinish, sink.parts[3].Type)
	assert.True(t, sink.closed)
}

func TestStreamWriteAfterFinishFails(t *testing.T) {
	s := stream.New(&bufSink{})
	ctx := context.Background()
	require.NoError(t, s.Finish(ctx, "m1"))
	err := s.WriteText(ctx, "m1", "late")
	assert.ErrorIs(t, err, stream.ErrClosed)
}

func TestFinishIsIdempotent(t *testing.T) {
	s := stream.New(&bufSink{})
	ctx := context.Background()
	require.NoError(t, s.Finish(ctx, "m1"))
	require.NoError(t, s.Finish(ctx, "m1"))
}

func TestMergePreservesSubStreamOrderAndDropsSentinels(t *testing.T) {
	parentSink := &bufSink{}
	parent := stream.New(parentSink)
	sub := stream.New()
	sub.AddSink(stream.Merge(parent, sub))

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx, "sub"))
	require.NoError(t, sub.WriteText(ctx, "sub", "x"))
	require.NoError(t, sub.WriteText(ctx, "sub", "y"))
	require.NoError(t, sub.Finish(ctx, "sub"))

	require.Len(t, parentSink.parts, 2)
	assert.Equal(t, "x", parentSink.parts[0].Text)
	assert.Equal(t, "y", parentSink.parts[1].Text)
}

func TestPartsReturnsFullBufferForMaterialization(t *testing.T) {
	s := stream.New()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, "m1"))
	require.NoError(t, s.WriteText(ctx, "m1", "hello"))
	require.NoError(t, s.Finish(ctx, "m1"))

	parts := s.Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, "hello", parts[1].Text)
	assert.True(t, s.Closed())
}
