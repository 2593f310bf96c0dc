// Package agent is the boundary to the generative-AI backend.
package agent

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("API key environment variable not set")

// Role is the backend's vocabulary for history entries.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type HistoryEntry struct {
	Role Role
	Text string
}

type ChatRequest struct {
	SystemPrompt string
	History      []HistoryEntry
	Message      string
}

// Fragment is one streamed chunk. A non-nil Err is always the last value
// sent before the channel closes.
type Fragment struct {
	Text string
	Err  error
}

type ImageRequest struct {
	Prompt      string
	Count       int
	AspectRatio string
}

type Image struct {
	Bytes    []byte
	MIMEType string
}

// Backend is the contract the chat core consumes.
type Backend interface {
	// GenerateTitle returns a short label for a conversation.
	GenerateTitle(ctx context.Context, prompt string) (string, error)
	// StreamChat returns a channel of fragments that is closed when the
	// response ends. Cancelling ctx stops the stream.
	StreamChat(ctx context.Context, req ChatRequest) (<-chan Fragment, error)
	// GenerateImages returns the images in backend order.
	GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error)
}

// Unavailable is the Backend used when no credential is configured. Every
// call fails with ErrNotConfigured.
type Unavailable struct{}

func (Unavailable) GenerateTitle(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unavailable) StreamChat(context.Context, ChatRequest) (<-chan Fragment, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) GenerateImages(context.Context, ImageRequest) ([]Image, error) {
	return nil, ErrNotConfigured
}
