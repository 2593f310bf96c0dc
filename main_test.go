package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/api"
	"github.com/robert2687/pers-code-assist/chat"
	"github.com/robert2687/pers-code-assist/kvstore"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
	"github.com/robert2687/pers-code-assist/settings"
	"github.com/robert2687/pers-code-assist/ws"
)

func newTestHandler(t *testing.T, token string) http.Handler {
	t.Helper()
	registry := agentrole.NewRegistry("")
	store := session.NewStore(kvstore.NewMemoryStore(), registry)
	turns := process.NewManager(0)
	settingsStore, err := settings.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	client := chat.NewClient(chat.Config{Store: store, Prompts: registry, Turns: turns})
	rpc := ws.NewRPCHandler(ws.Config{
		Token:    token,
		Version:  "test",
		Registry: registry,
		Store:    store,
		Chat:     client,
		Turns:    turns,
		Settings: settingsStore,
	})
	t.Cleanup(func() {
		rpc.Stop()
		client.Close()
		turns.Shutdown()
	})
	return newHandler(config{token: token}, rpc, api.NewSessionHandler(registry, store, turns))
}

func TestHandler_Routes(t *testing.T) {
	h := newTestHandler(t, "secret")

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"api requires token", "/api/agents", "", http.StatusUnauthorized},
		{"api with token", "/api/agents", "Bearer secret", http.StatusOK},
		{"session list", "/api/agents/Default/sessions", "Bearer secret", http.StatusOK},
		{"unknown agent", "/api/agents/Nobody/sessions", "Bearer secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("PORT", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "fallback")
	t.Setenv("TURN_TIMEOUT_SECONDS", "30")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.port != defaultPort {
		t.Errorf("port = %q, want %q", cfg.port, defaultPort)
	}
	if cfg.apiKey != "fallback" {
		t.Errorf("apiKey = %q, want API_KEY fallback", cfg.apiKey)
	}
	if cfg.dataDir != dir {
		t.Errorf("dataDir = %q, want %q", cfg.dataDir, dir)
	}
	if cfg.turnTimeout.Seconds() != 30 {
		t.Errorf("turnTimeout = %v", cfg.turnTimeout)
	}

	t.Setenv("TURN_TIMEOUT_SECONDS", "soon")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config
		wantAddr   string
		wantBanner string
	}{
		{"no token stays on loopback", config{port: "8080"}, "127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"token exposes LAN", config{port: "9000", token: "secret"}, ":9000", "http://192.168.1.20:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listenAddr(tt.cfg); got != tt.wantAddr {
				t.Errorf("listenAddr = %q, want %q", got, tt.wantAddr)
			}
			if got := bannerURL(tt.cfg, "192.168.1.20"); got != tt.wantBanner {
				t.Errorf("bannerURL = %q, want %q", got, tt.wantBanner)
			}
		})
	}
}
