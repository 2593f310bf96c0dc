package chat

import (
	"encoding/base64"
	"log/slog"

	"github.com/robert2687/pers-code-assist/agent"
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/session"
)

const (
	imageErrorPrefix = "Sorry, something went wrong while generating the image: "
	emptyImagePrompt = "Please provide a prompt for the image."
)

// runImage handles an /imagine directive. It reports whether the turn
// completed successfully.
func (c *Client) runImage(p *pendingTurn) bool {
	ctx := p.token.Context()
	a, id := p.agent, p.session.ID
	req := p.route.Image

	userMsg := session.Message{Role: session.RoleUser, Content: p.route.Text}
	if err := c.store.AppendMessage(a, id, userMsg); err != nil {
		return false
	}

	if req.Prompt == "" {
		c.reportError(p, emptyImagePrompt, false)
		return false
	}

	images, err := c.backend.GenerateImages(ctx, agent.ImageRequest{
		Prompt:      req.Prompt,
		Count:       req.Count,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		if p.token.Interrupted() {
			slog.Info("image generation interrupted", "sessionId", id)
			return false
		}
		c.reportError(p, imageErrorPrefix+err.Error(), false)
		return false
	}

	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = DataURI(img)
	}
	// Image generation only exists for the Default agent.
	msg := session.Message{Role: session.RoleModel, ImageURLs: urls, Agent: agentrole.Default}
	if err := c.store.AppendMessage(a, id, msg); err != nil {
		return false
	}
	return true
}

// DataURI encodes an image inline.
func DataURI(img agent.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes)
}
