package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestAuth(t *testing.T) {
	const validToken = "test-token"

	handler := Auth(validToken)(okHandler())

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"health bypasses auth", "/health", "", http.StatusOK},
		{"websocket authenticates itself", "/ws", "", http.StatusOK},
		{"missing auth header", "/api/agents", "", http.StatusUnauthorized},
		{"invalid auth format", "/api/agents", "Basic token", http.StatusUnauthorized},
		{"no credential", "/api/agents", "Bearer", http.StatusUnauthorized},
		{"invalid token", "/api/agents", "Bearer wrong-token", http.StatusUnauthorized},
		{"valid token", "/api/agents", "Bearer " + validToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuth_EmptyTokenDisablesCheck(t *testing.T) {
	handler := Auth("")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}
