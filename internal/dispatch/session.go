package dispatch

import (
	"context"

	"chispart/internal/core"
)

// Session is a rolling interactive conversation. Each turn sends the full
// accumulated history; the assistant reply is appended only after a
// successful exchange, so a failed turn leaves the history untouched.
type Session struct {
	d          *Dispatcher
	providerID string
	alias      string
	messages   []core.Message
}

// NewSession starts an interactive conversation against one provider and
// model. An empty providerID or alias selects the defaults.
func (d *Dispatcher) NewSession(providerID, alias string) *Session {
	return &Session{d: d, providerID: providerID, alias: alias}
}

// Send runs one turn: append the user message, dispatch the whole history
// and on success record the assistant reply.
func (s *Session) Send(ctx context.Context, text string) (*Result, error) {
	turn := append(s.messages, core.Message{Role: core.RoleUser, Content: core.TextContent(text)})

	result, err := s.d.chatOp(ctx, OpInteractive, s.providerID, s.alias, turn)
	if err != nil {
		return nil, err
	}

	s.messages = append(turn, core.Message{
		Role:    core.RoleAssistant,
		Content: core.TextContent(result.Response.Text()),
	})
	return result, nil
}

// SendStream runs one streaming turn. The assistant reply is appended to
// the history when the done event arrives.
func (s *Session) SendStream(ctx context.Context, text string) (<-chan core.StreamEvent, *Result, error) {
	turn := append(s.messages, core.Message{Role: core.RoleUser, Content: core.TextContent(text)})

	upstream, result, err := s.d.streamOp(ctx, OpInteractive, s.providerID, s.alias, turn)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan core.StreamEvent)
	go func() {
		defer close(out)
		var buf []byte
		for ev := range upstream {
			switch ev.Type {
			case core.EventContent:
				buf = append(buf, ev.Content...)
			case core.EventDone:
				s.messages = append(turn, core.Message{
					Role:    core.RoleAssistant,
					Content: core.TextContent(string(buf)),
				})
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, result, nil
}

// Len reports the number of messages accumulated so far.
func (s *Session) Len() int { return len(s.messages) }

// Reset clears the conversation history.
func (s *Session) Reset() { s.messages = nil }
