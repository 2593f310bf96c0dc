package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/session"
)

var exportTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleSession() session.ChatSession {
	return session.ChatSession{
		ID:    "sess-1",
		Title: "Cat Pictures",
		Messages: []session.Message{
			{Role: session.RoleModel, Content: "Hello!", Agent: agentrole.Default},
			{Role: session.RoleUser, Content: "/imagine a cat --n 2"},
			{Role: session.RoleModel, Agent: agentrole.Default, ImageURLs: []string{"data:image/jpeg;base64,AA", "data:image/jpeg;base64,BB"}},
			{Role: session.RoleError, Content: "Sorry, something went wrong: quota", Agent: agentrole.Default},
		},
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript(sampleSession(), agentrole.Default, exportTime)

	want := "Chat Export: Cat Pictures\n" +
		"Agent: Default\n" +
		"Exported: 2025-03-14 09:26:53\n" +
		strings.Repeat("=", 50) + "\n\n" +
		"AI:\nHello!\n\n" +
		"User:\n/imagine a cat --n 2\n\n" +
		"AI:\n\n\n" +
		"[Images: 2 image(s) generated]\n\n" +
		"Error:\nSorry, something went wrong: quota\n\n"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	sess := sampleSession()
	data, err := JSON(sess, agentrole.Default, exportTime)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if doc.MessageCount != len(sess.Messages) || len(doc.Messages) != len(sess.Messages) {
		t.Fatalf("messageCount = %d, messages = %d, want %d", doc.MessageCount, len(doc.Messages), len(sess.Messages))
	}
	for i, m := range sess.Messages {
		if doc.Messages[i].Role != m.Role || doc.Messages[i].Content != m.Content {
			t.Errorf("message %d: got (%s, %q), want (%s, %q)", i, doc.Messages[i].Role, doc.Messages[i].Content, m.Role, m.Content)
		}
	}
	if doc.Title != "Cat Pictures" || doc.Agent != agentrole.Default {
		t.Errorf("header = (%q, %q)", doc.Title, doc.Agent)
	}
	if !doc.ExportedAt.Equal(exportTime) {
		t.Errorf("exportedAt = %v", doc.ExportedAt)
	}
}

func TestJSON_Shape(t *testing.T) {
	data, err := JSON(sampleSession(), agentrole.Default, exportTime)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"title\"") {
		t.Error("expected two-space indentation")
	}

	var raw struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	user := raw.Messages[1]
	if _, ok := user["agent"]; ok {
		t.Error("user message should have no agent")
	}
	urls, ok := user["imageUrls"].([]any)
	if !ok || len(urls) != 0 {
		t.Errorf("imageUrls = %#v, want empty array", user["imageUrls"])
	}
	if user["timestamp"] != "2025-03-14T09:26:53Z" {
		t.Errorf("timestamp = %v", user["timestamp"])
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		title  string
		agent  agentrole.Agent
		format Format
		want   string
	}{
		{"Cat Pictures", agentrole.Default, FormatText, "Cat_Pictures_Default.txt"},
		{"New Chat", agentrole.SystemsArchitect, FormatJSON, "New_Chat_Systems_Architect.json"},
		{"Go: généreux?", agentrole.APIIntegration, FormatText, "Go__g_n_reux__API_Integration.txt"},
	}
	for _, tt := range tests {
		if got := Filename(tt.title, tt.agent, tt.format); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.title, tt.agent, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"TXT", FormatText, false},
		{"json", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
