package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robert2687/pers-code-assist/agent"
	"github.com/robert2687/pers-code-assist/session"
)

const chatErrorPrefix = "Sorry, something went wrong: "

var errTurnTimeout = errors.New("the response took too long")

// runChat streams a model response into the session. It reports whether
// the turn completed successfully.
func (c *Client) runChat(p *pendingTurn) bool {
	ctx := p.token.Context()
	a, id := p.agent, p.session.ID

	userMsg := session.Message{Role: session.RoleUser, Content: p.route.Text}
	if err := c.store.AppendMessage(a, id, userMsg); err != nil {
		return false
	}
	placeholder := session.Message{Role: session.RoleModel, Agent: a}
	if err := c.store.AppendMessage(a, id, placeholder); err != nil {
		return false
	}

	frags, err := c.backend.StreamChat(ctx, agent.ChatRequest{
		SystemPrompt: c.prompts.SystemPrompt(a),
		History:      toHistory(p.session.Messages),
		Message:      p.route.Text,
	})
	if err != nil {
		if p.token.Interrupted() {
			c.finishInterrupted(p)
			return false
		}
		c.reportError(p, chatErrorPrefix+err.Error(), true)
		return false
	}

	for f := range frags {
		if f.Err != nil {
			if ctx.Err() == nil {
				c.reportError(p, chatErrorPrefix+f.Err.Error(), true)
				return false
			}
			break
		}
		err := c.store.MutateLastMessage(a, id, func(m session.Message) session.Message {
			m.Content += f.Text
			return m
		})
		if err != nil {
			// Session deleted mid-stream; stop folding.
			slog.Info("stream target gone, abandoning turn", "sessionId", id, "error", err)
			c.turns.Interrupt(p.token.Key())
			drain(frags)
			return false
		}
	}

	if ctx.Err() != nil {
		if p.token.Interrupted() {
			c.finishInterrupted(p)
			return false
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.reportError(p, chatErrorPrefix+errTurnTimeout.Error(), true)
			return false
		}
	}
	return true
}

// finishInterrupted keeps partial output and drops an empty placeholder.
func (c *Client) finishInterrupted(p *pendingTurn) {
	sess, ok := c.store.Session(p.agent, p.session.ID)
	if !ok || len(sess.Messages) == 0 {
		return
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role == session.RoleModel && last.Content == "" && len(last.ImageURLs) == 0 {
		if err := c.store.RemoveLastMessage(p.agent, p.session.ID); err != nil {
			slog.Debug("could not remove empty placeholder", "error", err)
		}
	}
}

func drain(frags <-chan agent.Fragment) {
	for range frags {
	}
}

// toHistory translates stored messages into backend history. Error
// messages and entries without text are not sent upstream.
func toHistory(msgs []session.Message) []agent.HistoryEntry {
	out := make([]agent.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case session.RoleUser:
			out = append(out, agent.HistoryEntry{Role: agent.RoleUser, Text: m.Content})
		case session.RoleModel:
			out = append(out, agent.HistoryEntry{Role: agent.RoleModel, Text: m.Content})
		}
	}
	return out
}
