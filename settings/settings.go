// Package settings provides runtime-tunable generation settings.
package settings

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid settings")

const (
	DefaultChatModel        = "gemini-2.5-flash"
	DefaultTitleModel       = "gemini-2.5-flash"
	DefaultImageModel       = "imagen-3.0-generate-002"
	DefaultTitleTemperature = 0.2
	DefaultImageMIMEType    = "image/jpeg"

	MaxTemperature = 2.0
)

type Settings struct {
	ChatModel        string  `json:"chat_model"`
	TitleModel       string  `json:"title_model"`
	ImageModel       string  `json:"image_model"`
	TitleTemperature float32 `json:"title_temperature"`
	ImageMIMEType    string  `json:"image_mime_type"`
}

func Default() Settings {
	return Settings{
		ChatModel:        DefaultChatModel,
		TitleModel:       DefaultTitleModel,
		ImageModel:       DefaultImageModel,
		TitleTemperature: DefaultTitleTemperature,
		ImageMIMEType:    DefaultImageMIMEType,
	}
}

func (s Settings) Validate() error {
	for name, v := range map[string]string{
		"chat_model":  s.ChatModel,
		"title_model": s.TitleModel,
		"image_model": s.ImageModel,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, name)
		}
	}
	if s.TitleTemperature < 0 || s.TitleTemperature > MaxTemperature {
		return fmt.Errorf("%w: title_temperature must be within [0, %g]", ErrInvalid, MaxTemperature)
	}
	switch s.ImageMIMEType {
	case "image/jpeg", "image/png":
	default:
		return fmt.Errorf("%w: image_mime_type %q is not supported", ErrInvalid, s.ImageMIMEType)
	}
	return nil
}

// OnChangeListener is called after a successful update while the store's
// mutex is held, so it must not block.
type OnChangeListener interface {
	OnSettingsChange(s Settings)
}
