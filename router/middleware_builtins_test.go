package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/router/chatstore"
	. "github.com/agentmesh/router/router"
)

func TestContextLimitTruncatesToLastN(t *testing.T) {
	rtr := New()
	require.NoError(t, rtr.Use("/chat", ContextLimit(2)))
	require.NoError(t, rtr.Agent("/chat", func(ctx *Context) (any, error) {
		require.Len(t, ctx.Request.Messages, 2)
		require.Equal(t, "b", ctx.Request.Messages[0].Parts[0].Text)
		require.Equal(t, "c", ctx.Request.Messages[1].Parts[0].Text)
		return nil, nil
	}))

	msgs := []Message{textMessage("a"), textMessage("b"), textMessage("c")}
	res, err := rtr.ToAwaitResponse(context.Background(), "/chat", &Request{Messages: msgs})
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestContextLimitPassesThroughWhenUnderLimit(t *testing.T) {
	rtr := New()
	require.NoError(t, rtr.Use("/chat", ContextLimit(5)))
	require.NoError(t, rtr.Agent("/chat", func(ctx *Context) (any, error) {
		require.Len(t, ctx.Request.Messages, 1)
		return nil, nil
	}))
	_, err := rtr.ToAwaitResponse(context.Background(), "/chat", &Request{Messages: []Message{textMessage("a")}})
	require.NoError(t, err)
}

func TestOnlyTextProjectionDoesNotMutateRequestMessages(t *testing.T) {
	rtr := New()
	require.NoError(t, rtr.Use("/chat", OnlyTextProjection(5)))
	require.NoError(t, rtr.Agent("/chat", func(ctx *Context) (any, error) {
		v, ok := ctx.State.Get(OnlyTextMessagesKey)
		require.True(t, ok)
		projected := v.([]Message)
		require.Len(t, projected, 1)
		require.LessOrEqual(t, len(projected[0].Parts[0].Text), 5)
		require.Equal(t, "hello world this is long", ctx.Request.Messages[0].Parts[0].Text)
		return nil, nil
	}))
	long := Message{Role: RoleAssistant, Parts: []MessagePart{{Kind: "text", Text: "hello world this is long"}}}
	_, err := rtr.ToAwaitResponse(context.Background(), "/chat", &Request{Messages: []Message{long}})
	require.NoError(t, err)
}

func TestChatSessionRestoreMergesByMessageID(t *testing.T) {
	store := chatstore.NewMemStore()
	require.NoError(t, store.SaveSession(context.Background(), "sess-1", []Message{
		{Role: RoleUser, Metadata: MessageMetadata{ID: "m1"}, Parts: []MessagePart{{Kind: "text", Text: "hi"}}},
	}))

	rtr := New()
	require.NoError(t, rtr.Use("/chat", ChatSessionRestore(store, nil)))
	require.NoError(t, rtr.Agent("/chat", func(ctx *Context) (any, error) {
		require.Len(t, ctx.Request.Messages, 1)
		require.Equal(t, "hi again", ctx.Request.Messages[0].Parts[0].Text)
		return nil, nil
	}))

	req := &Request{
		SessionID: "sess-1",
		Messages: []Message{
			{Role: RoleUser, Metadata: MessageMetadata{ID: "m1"}, Parts: []MessagePart{{Kind: "text", Text: "hi again"}}},
		},
	}
	_, err := rtr.ToAwaitResponse(context.Background(), "/chat", req)
	require.NoError(t, err)
}

func TestChatSessionRestoreCreatesNewSessionAndGeneratesTitle(t *testing.T) {
	store := chatstore.NewMemStore()
	var titled string
	titleGen := func(_ context.Context, first Message) (string, error) {
		titled = first.Parts[0].Text
		return "a new chat", nil
	}

	rtr := New()
	require.NoError(t, rtr.Use("/chat", ChatSessionRestore(store, titleGen)))
	require.NoError(t, rtr.Agent("/chat", func(ctx *Context) (any, error) { return nil, nil }))

	req := &Request{Messages: []Message{
		{Role: RoleUser, Metadata: MessageMetadata{ID: "m1"}, Parts: []MessagePart{{Kind: "text", Text: "first"}}},
	}}
	_, err := rtr.ToAwaitResponse(context.Background(), "/chat", req)
	require.NoError(t, err)
	require.Equal(t, "first", titled)
	require.NotEmpty(t, req.SessionID)

	msgs, found, err := store.LoadSession(context.Background(), req.SessionID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a new chat", msgs[0].Metadata.Extra["title"])
}

func textMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []MessagePart{{Kind: "text", Text: text}}}
}
