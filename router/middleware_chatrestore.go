package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ChatStore persists a session's message history, backing the
// Chat-session restore middleware (spec.md §4.2). Implementations (e.g.
// chatstore.MongoStore) are supplied by the embedding application.
type ChatStore interface {
	// LoadSession returns sessionID's stored messages, or (nil, false) if
	// the session does not exist.
	LoadSession(ctx context.Context, sessionID string) ([]Message, bool, error)
	// SaveSession persists messages as sessionID's full history, replacing
	// whatever was stored before.
	SaveSession(ctx context.Context, sessionID string, messages []Message) error
}

// TitleGenerator produces a short session title from a session's first
// message, typically by calling an external LM (spec.md §4.2: "generates a
// title from the first message via an external LM").
type TitleGenerator func(ctx context.Context, first Message) (string, error)

// ChatSessionRestore returns a Middleware that loads ctx.Request.SessionID's
// prior messages from store and concatenates them with the newest incoming
// message, deduplicating by message id (an incoming id that already exists
// replaces the stored message in place). When no prior session exists, one
// is created, titled via titleGen (if non-nil) from the first message, and
// persisted. A live "loader" is written to the response via
// WriteMessageMetadata while the restore is in flight (spec.md §4.2).
func ChatSessionRestore(store ChatStore, titleGen TitleGenerator) Middleware {
	return func(ctx *Context, next Next) (any, error) {
		std := ctx.Context()
		sessionID := ctx.Request.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
			ctx.Request.SessionID = sessionID
		}

		incoming := ctx.Request.Latest()
		loaderID := incoming.Metadata.ID
		if loaderID == "" {
			loaderID = sessionID
		}
		_ = ctx.Response.WriteMessageMetadata(std, loaderID, map[string]any{"loader": "restoring session"})

		prior, found, err := store.LoadSession(std, sessionID)
		if err != nil {
			return nil, fmt.Errorf("router: chat session restore: load %s: %w", sessionID, err)
		}

		var merged []Message
		if !found {
			merged = []Message{incoming}
			if titleGen != nil {
				title, terr := titleGen(std, incoming)
				if terr == nil {
					incoming.Metadata.Extra = withTitle(incoming.Metadata.Extra, title)
					merged[0] = incoming
				}
			}
		} else {
			merged = mergeByMessageID(prior, incoming)
		}

		if err := store.SaveSession(std, sessionID, merged); err != nil {
			return nil, fmt.Errorf("router: chat session restore: save %s: %w", sessionID, err)
		}

		ctx.Request.Messages = merged
		_ = ctx.Response.WriteMessageMetadata(std, loaderID, map[string]any{"loader": nil})
		return next()
	}
}

func mergeByMessageID(prior []Message, incoming Message) []Message {
	if incoming.Metadata.ID == "" {
		return append(append([]Message(nil), prior...), incoming)
	}
	for i, m := range prior {
		if m.Metadata.ID == incoming.Metadata.ID {
			merged := append([]Message(nil), prior...)
			merged[i] = incoming
			return merged
		}
	}
	return append(append([]Message(nil), prior...), incoming)
}

func withTitle(extra map[string]any, title string) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out["title"] = title
	return out
}
