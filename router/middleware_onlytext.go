package router

// OnlyTextMessagesKey is the State key OnlyTextProjection publishes its
// result under (spec.md §4.2 "Only-text projection").
const OnlyTextMessagesKey = "onlyTextMessages"

// OnlyTextProjection returns a Middleware that derives a text-only view of
// ctx.Request.Messages and publishes it to ctx.State[OnlyTextMessagesKey]
// without mutating Request.Messages itself. Each message keeps only its
// text MessageParts; for assistant messages whose combined text parts
// exceed assistantCharCap, every text part is truncated proportionally to
// its share of the total so the combined length lands at the cap
// (spec.md §4.2).
func OnlyTextProjection(assistantCharCap int) Middleware {
	return func(ctx *Context, next Next) (any, error) {
		projected := make([]Message, len(ctx.Request.Messages))
		for i, m := range ctx.Request.Messages {
			projected[i] = projectOnlyText(m, assistantCharCap)
		}
		ctx.State.Set(OnlyTextMessagesKey, projected)
		return next()
	}
}

func projectOnlyText(m Message, assistantCharCap int) Message {
	var textParts []MessagePart
	total := 0
	for _, p := range m.Parts {
		if p.Kind == "text" {
			textParts = append(textParts, p)
			total += len(p.Text)
		}
	}
	out := Message{Role: m.Role, Parts: textParts, Metadata: m.Metadata}
	if m.Role != RoleAssistant || assistantCharCap <= 0 || total <= assistantCharCap {
		return out
	}

	ratio := float64(assistantCharCap) / float64(total)
	truncated := make([]MessagePart, len(textParts))
	budget := assistantCharCap
	for i, p := range textParts {
		want := int(float64(len(p.Text)) * ratio)
		if i == len(textParts)-1 {
			want = budget
		}
		if want < 0 {
			want = 0
		}
		if want > len(p.Text) {
			want = len(p.Text)
		}
		truncated[i] = MessagePart{Kind: p.Kind, Text: p.Text[:want]}
		budget -= want
		if budget < 0 {
			budget = 0
		}
	}
	out.Parts = truncated
	return out
}
