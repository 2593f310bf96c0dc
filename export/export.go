// Package export renders a chat session as a text transcript or a JSON
// document for download.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/session"
)

// Format is an export file format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text", "txt" and "json". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) Extension() string {
	if f == FormatJSON {
		return "json"
	}
	return "txt"
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// TimestampLayout formats the export time in transcripts.
const TimestampLayout = "2006-01-02 15:04:05"

const separatorWidth = 50

func roleLabel(r session.Role) string {
	switch r {
	case session.RoleUser:
		return "User"
	case session.RoleModel:
		return "AI"
	default:
		return "Error"
	}
}

// Transcript renders sess as human-readable text.
func Transcript(sess session.ChatSession, agent agentrole.Agent, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat Export: %s\n", sess.Title)
	fmt.Fprintf(&b, "Agent: %s\n", agent)
	fmt.Fprintf(&b, "Exported: %s\n", now.Format(TimestampLayout))
	b.WriteString(strings.Repeat("=", separatorWidth))
	b.WriteString("\n\n")

	for _, m := range sess.Messages {
		fmt.Fprintf(&b, "%s:\n%s\n\n", roleLabel(m.Role), m.Content)
		if n := len(m.ImageURLs); n > 0 {
			fmt.Fprintf(&b, "[Images: %d image(s) generated]\n\n", n)
		}
	}
	return b.String()
}

// Document is the JSON export schema.
type Document struct {
	Title        string            `json:"title"`
	Agent        agentrole.Agent   `json:"agent"`
	ExportedAt   time.Time         `json:"exportedAt"`
	MessageCount int               `json:"messageCount"`
	Messages     []DocumentMessage `json:"messages"`
}

type DocumentMessage struct {
	Role      session.Role    `json:"role"`
	Content   string          `json:"content"`
	Agent     agentrole.Agent `json:"agent,omitempty"`
	ImageURLs []string        `json:"imageUrls"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewDocument builds the JSON export of sess. Messages carry no creation
// time, so every timestamp is the export time.
func NewDocument(sess session.ChatSession, agent agentrole.Agent, now time.Time) Document {
	now = now.UTC()
	doc := Document{
		Title:        sess.Title,
		Agent:        agent,
		ExportedAt:   now,
		MessageCount: len(sess.Messages),
		Messages:     make([]DocumentMessage, 0, len(sess.Messages)),
	}
	for _, m := range sess.Messages {
		urls := m.ImageURLs
		if urls == nil {
			urls = []string{}
		}
		doc.Messages = append(doc.Messages, DocumentMessage{
			Role:      m.Role,
			Content:   m.Content,
			Agent:     m.Agent,
			ImageURLs: urls,
			Timestamp: now,
		})
	}
	return doc
}

// JSON renders sess as an indented JSON document.
func JSON(sess session.ChatSession, agent agentrole.Agent, now time.Time) ([]byte, error) {
	return json.MarshalIndent(NewDocument(sess, agent, now), "", "  ")
}

// Render produces the export body in the given format.
func Render(f Format, sess session.ChatSession, agent agentrole.Agent, now time.Time) ([]byte, error) {
	if f == FormatJSON {
		return JSON(sess, agent, now)
	}
	return []byte(Transcript(sess, agent, now)), nil
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-zA-Z0-9]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Filename builds the download name "<title>_<agent>.<ext>".
func Filename(title string, agent agentrole.Agent, f Format) string {
	return nonAlnum.ReplaceAllString(title, "_") + "_" +
		whitespace.ReplaceAllString(string(agent), "_") + "." + f.Extension()
}
