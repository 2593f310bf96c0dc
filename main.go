package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"

	"github.com/robert2687/pers-code-assist/agent"
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/api"
	"github.com/robert2687/pers-code-assist/chat"
	"github.com/robert2687/pers-code-assist/kvstore"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/mcp"
	"github.com/robert2687/pers-code-assist/middleware"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
	"github.com/robert2687/pers-code-assist/settings"
	"github.com/robert2687/pers-code-assist/ws"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultPort        = "8080"
	defaultTurnTimeout = 5 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

type config struct {
	port        string
	dataDir     string
	backend     kvstore.Backend
	apiKey      string
	token       string
	devMode     bool
	turnTimeout time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		port:        os.Getenv("PORT"),
		dataDir:     os.Getenv("DATA_DIR"),
		backend:     kvstore.Backend(os.Getenv("STORAGE_BACKEND")),
		apiKey:      os.Getenv("GEMINI_API_KEY"),
		token:       os.Getenv("AUTH_TOKEN"),
		devMode:     os.Getenv("DEV_MODE") == "true",
		turnTimeout: defaultTurnTimeout,
	}
	if cfg.port == "" {
		cfg.port = defaultPort
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("API_KEY")
	}
	if cfg.dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.dataDir = filepath.Join(home, ".pers-code-assist")
	}
	if v := os.Getenv("TURN_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return cfg, fmt.Errorf("invalid TURN_TIMEOUT_SECONDS %q", v)
		}
		cfg.turnTimeout = time.Duration(secs) * time.Second
	}
	if err := os.MkdirAll(cfg.dataDir, 0755); err != nil {
		return cfg, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, nil
}

// listenAddr keeps an unauthenticated server on the loopback interface.
// Other devices can reach it only when AUTH_TOKEN is set.
func listenAddr(cfg config) string {
	if cfg.token == "" {
		return net.JoinHostPort("127.0.0.1", cfg.port)
	}
	return ":" + cfg.port
}

func newHandler(cfg config, rpc *ws.RPCHandler, sessions *api.SessionHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// WebSocket endpoint (authenticates with the "auth" request)
	mux.Handle("GET /ws", rpc)
	sessions.Register(mux)

	return middleware.Auth(cfg.token)(mux)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		if err := runMCP(cfg); err != nil {
			slog.Error("mcp server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func runServer(cfg config) error {
	logger.Init(logger.Config{DataDir: cfg.dataDir, DevMode: cfg.devMode})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.Open(cfg.backend, cfg.dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	registry := agentrole.NewRegistry(cfg.dataDir)
	if err := registry.StartWatching(); err != nil {
		slog.Warn("agent overrides will not be reloaded", "error", err)
	}
	defer registry.StopWatching()

	settingsStore, err := settings.NewStore(cfg.dataDir)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	var backend agent.Backend
	gemini, err := agent.NewGeminiBackend(ctx, cfg.apiKey, settingsStore)
	switch {
	case err == nil:
		backend = gemini
	case errors.Is(err, agent.ErrNotConfigured):
		slog.Warn("no API key configured, chat is disabled")
		backend = agent.Unavailable{}
	default:
		return err
	}

	store := session.NewStore(kv, registry)
	turns := process.NewManager(cfg.turnTimeout)
	defer turns.Shutdown()

	client := chat.NewClient(chat.Config{
		Store:   store,
		Prompts: registry,
		Backend: backend,
		Turns:   turns,
	})
	defer client.Close()

	rpc := ws.NewRPCHandler(ws.Config{
		Token:    cfg.token,
		Version:  version,
		DevMode:  cfg.devMode,
		Registry: registry,
		Store:    store,
		Chat:     client,
		Turns:    turns,
		Settings: settingsStore,
	})
	defer rpc.Stop()

	srv := &http.Server{
		Addr:    listenAddr(cfg),
		Handler: newHandler(cfg, rpc, api.NewSessionHandler(registry, store, turns)),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "dataDir", cfg.dataDir, "storage", cfg.backend, "version", version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	printBanner(cfg)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	return nil
}

// runMCP serves the persisted chat state over stdio. Stdout carries
// protocol frames, so logs go to stderr or the log file.
func runMCP(cfg config) error {
	logger.Init(logger.Config{DataDir: cfg.dataDir, DevMode: cfg.devMode, Stderr: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.Open(cfg.backend, cfg.dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	registry := agentrole.NewRegistry(cfg.dataDir)
	return mcp.NewServer(kv, registry, version).Run(ctx, os.Stdin, os.Stdout)
}

// printBanner shows the server address as a QR code for phones on the
// same network. Skipped when stdout is not a terminal.
func printBanner(cfg config) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	url := bannerURL(cfg, lanAddress())
	fmt.Printf("\npers-code-assist %s listening on %s\n\n", version, url)
	qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
	fmt.Println()
}

// bannerURL advertises the LAN address only when the server listens on it.
func bannerURL(cfg config, lan string) string {
	host := "127.0.0.1"
	if cfg.token != "" {
		host = lan
	}
	return "http://" + net.JoinHostPort(host, cfg.port)
}

func lanAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
