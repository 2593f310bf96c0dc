package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/robert2687/pers-code-assist/settings"
)

// SettingsSource returns the current generation settings. Read on every
// call so updates apply to the next request.
type SettingsSource interface {
	Get() settings.Settings
}

// GeminiBackend implements Backend on the Gemini API.
type GeminiBackend struct {
	client   *genai.Client
	settings SettingsSource
}

func NewGeminiBackend(ctx context.Context, apiKey string, src SettingsSource) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiBackend{client: client, settings: src}, nil
}

func (g *GeminiBackend) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	st := g.settings.Get()
	temp := st.TitleTemperature

	res, err := g.client.Models.GenerateContent(ctx, st.TitleModel,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate title: %w", err)
	}
	return res.Text(), nil
}

func (g *GeminiBackend) StreamChat(ctx context.Context, req ChatRequest) (<-chan Fragment, error) {
	st := g.settings.Get()
	contents := buildContents(req)

	var cfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		}
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)

		for res, err := range g.client.Models.GenerateContentStream(ctx, st.ChatModel, contents, cfg) {
			if err != nil {
				send(ctx, out, Fragment{Err: fmt.Errorf("gemini stream: %w", err)})
				return
			}
			text := res.Text()
			if text == "" {
				continue
			}
			if !send(ctx, out, Fragment{Text: text}) {
				slog.Debug("chat stream abandoned", "model", st.ChatModel)
				return
			}
		}
	}()
	return out, nil
}

// send delivers f unless ctx ends first.
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func buildContents(req ChatRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, h := range req.History {
		role := genai.Role(genai.RoleUser)
		if h.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(h.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

var errNoImages = errors.New("no images were generated")

func (g *GeminiBackend) GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error) {
	st := g.settings.Get()

	res, err := g.client.Models.GenerateImages(ctx, st.ImageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(req.Count),
		AspectRatio:    req.AspectRatio,
		OutputMIMEType: st.ImageMIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate images: %w", err)
	}
	return collectImages(res, st.ImageMIMEType)
}

func collectImages(res *genai.GenerateImagesResponse, fallbackMIME string) ([]Image, error) {
	if res == nil {
		return nil, errNoImages
	}
	images := make([]Image, 0, len(res.GeneratedImages))
	for _, gi := range res.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi != nil && gi.RAIFilteredReason != "" {
				slog.Info("generated image filtered", "reason", gi.RAIFilteredReason)
			}
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = fallbackMIME
		}
		images = append(images, Image{Bytes: gi.Image.ImageBytes, MIMEType: mime})
	}
	if len(images) == 0 {
		return nil, errNoImages
	}
	return images, nil
}
