// Package command decides whether user input is a chat turn or a directive.
package command

import (
	"strings"

	"github.com/robert2687/pers-code-assist/agentrole"
)

// ImaginePrefix starts an image generation directive. Matching is
// case-insensitive.
const ImaginePrefix = "/imagine "

// Kind is the destination of a routed input.
type Kind int

const (
	KindChat Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// ImageRequest is a parsed /imagine directive.
type ImageRequest struct {
	// Prompt is the directive text with the prefix and accepted flags removed.
	Prompt      string
	Count       int
	AspectRatio string
}

// Route is the outcome of Parse. Text is always the trimmed input; Image is
// set only for KindImage.
type Route struct {
	Kind  Kind
	Text  string
	Image ImageRequest
}

// Parse routes input typed while agent is active. Directives are recognized
// for the Default agent only.
func Parse(input string, agent agentrole.Agent) Route {
	text := strings.TrimSpace(input)
	route := Route{Kind: KindChat, Text: text}

	if agent != agentrole.Default || !hasImaginePrefix(text) {
		return route
	}

	tokens := strings.Fields(text[len(ImaginePrefix):])
	rest, values := extract(tokens, imagineFlags)

	route.Kind = KindImage
	route.Image = ImageRequest{
		Prompt:      strings.Join(rest, " "),
		Count:       values[countFlag.Name].(int),
		AspectRatio: values[aspectRatioFlag.Name].(string),
	}
	return route
}

func hasImaginePrefix(s string) bool {
	return len(s) >= len(ImaginePrefix) && strings.EqualFold(s[:len(ImaginePrefix)], ImaginePrefix)
}
