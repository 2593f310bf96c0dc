package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/session"
)

const titleTimeout = 30 * time.Second

// TitlePrompt is the instruction sent to the backend to label a session.
func TitlePrompt(firstInput string) string {
	return fmt.Sprintf("Generate a concise, 4-word or less title for a conversation that starts with this user message: \"%s\"\n\nDo not include any quotation marks in the title.", firstInput)
}

var titlePunctuation = strings.NewReplacer(`"`, "", "*", "", "“", "", "”", "")

// CleanTitle strips quote and emphasis marks and surrounding whitespace.
func CleanTitle(raw string) string {
	return strings.TrimSpace(titlePunctuation.Replace(raw))
}

// generateTitle renames the session once. Every failure falls back to
// session.DefaultTitle.
func (c *Client) generateTitle(agent agentrole.Agent, sessionID, firstInput string) {
	log := slog.With("agent", agent, "sessionId", sessionID)

	ctx, cancel := context.WithTimeout(c.ctx, titleTimeout)
	defer cancel()

	title := session.DefaultTitle
	raw, err := c.backend.GenerateTitle(ctx, TitlePrompt(firstInput))
	if err != nil {
		log.Warn("title generation failed", "error", err)
	} else if cleaned := CleanTitle(raw); cleaned != "" {
		title = cleaned
	}

	if err := c.store.RenameSession(agent, sessionID, title); err != nil {
		log.Debug("session gone before title arrived", "error", err)
		return
	}
	log.Info("session titled", "title", logger.Truncate(title, 60))
}
