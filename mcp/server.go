// Package mcp implements a stdio MCP server exposing the persisted chat
// sessions as read-only tools.
package mcp

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/kvstore"
	"github.com/robert2687/pers-code-assist/session"
)

const serverName = "pers-code-assist"

type Server struct {
	kv       kvstore.Store
	registry *agentrole.Registry
	mcp      *server.MCPServer
	now      func() time.Time
}

// NewServer serves the state stored in kv. Every tool call reloads it, so
// changes made by a running chat server are visible immediately.
func NewServer(kv kvstore.Store, registry *agentrole.Registry, version string) *Server {
	s := &Server{
		kv:       kv,
		registry: registry,
		mcp:      server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		now:      time.Now,
	}
	s.registerTools()
	return s
}

// Run serves MCP over the given streams until ctx is cancelled or in is
// closed.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("MCP server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) loadStore() *session.Store {
	return session.NewStore(s.kv, s.registry)
}
