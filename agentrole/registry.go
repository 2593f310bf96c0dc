package agentrole

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OverridesFile is the name of the optional per-agent prompt override file
// inside the data directory.
const OverridesFile = "agents.json"

type override struct {
	SystemPrompt string `json:"system_prompt"`
	IntroMessage string `json:"intro_message"`
}

// Registry resolves the persona of each agent. Builtin prompts apply unless
// the overrides file replaces them.
type Registry struct {
	path      string
	mu        sync.RWMutex
	personas  map[Agent]Persona
	listeners []OnChangeListener

	watcher    *fsnotify.Watcher
	debounce   *time.Timer
	debounceMu sync.Mutex
}

// NewRegistry loads the overrides file under dataDir if present. An empty
// dataDir yields a registry with builtin personas only.
func NewRegistry(dataDir string) *Registry {
	r := &Registry{personas: builtinPersonas()}
	if dataDir == "" {
		return r
	}
	r.path = filepath.Join(dataDir, OverridesFile)

	personas, err := r.readFromDisk()
	if err != nil {
		slog.Warn("ignoring agent overrides", "path", r.path, "error", err)
		return r
	}
	r.personas = personas
	return r
}

func builtinPersonas() map[Agent]Persona {
	m := make(map[Agent]Persona, len(All))
	for _, a := range All {
		m[a] = Builtin(a)
	}
	return m
}

// List returns every persona in display order.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Persona, 0, len(All))
	for _, a := range All {
		out = append(out, r.personas[a])
	}
	return out
}

func (r *Registry) Get(a Agent) (Persona, error) {
	if !a.IsValid() {
		return Persona{}, ErrUnknownAgent
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[a], nil
}

func (r *Registry) SystemPrompt(a Agent) string {
	p, _ := r.Get(a)
	return p.SystemPrompt
}

func (r *Registry) IntroMessage(a Agent) string {
	p, _ := r.Get(a)
	return p.IntroMessage
}

func (r *Registry) AddOnChangeListener(listener OnChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// readFromDisk merges the overrides file over the builtin personas.
// Unknown agents and empty fields are ignored.
func (r *Registry) readFromDisk() (map[Agent]Persona, error) {
	personas := builtinPersonas()

	lockF, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return personas, nil
		}
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	defer lockF.Close()

	if err := syscall.Flock(int(lockF.Fd()), syscall.LOCK_SH); err != nil {
		return nil, fmt.Errorf("flock shared: %w", err)
	}
	defer syscall.Flock(int(lockF.Fd()), syscall.LOCK_UN)

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return personas, nil
	}
	if err != nil {
		return nil, err
	}

	var overrides map[string]override
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}

	for name, o := range overrides {
		a := Agent(name)
		if !a.IsValid() {
			slog.Warn("unknown agent in overrides", "agent", name)
			continue
		}
		p := personas[a]
		if o.SystemPrompt != "" {
			p.SystemPrompt = o.SystemPrompt
		}
		if o.IntroMessage != "" {
			p.IntroMessage = o.IntroMessage
		}
		personas[a] = p
	}
	return personas, nil
}

// --- fsnotify: pick up edits to the overrides file ---

func (r *Registry) StartWatching() error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = watcher

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return err
	}

	go r.watchLoop()
	slog.Info("agent registry watching for override changes", "path", r.path)
	return nil
}

func (r *Registry) StopWatching() {
	r.debounceMu.Lock()
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounceMu.Unlock()

	if r.watcher != nil {
		r.watcher.Close()
	}
}

func (r *Registry) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != OverridesFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			r.scheduleReload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("agent registry fsnotify error", "error", err)
		}
	}
}

const reloadDebounce = 100 * time.Millisecond

func (r *Registry) scheduleReload() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(reloadDebounce, r.Reload)
}

// Reload re-reads the overrides file and notifies listeners of every
// persona whose prompts changed. A malformed file keeps the current state.
func (r *Registry) Reload() {
	if r.path == "" {
		return
	}
	personas, err := r.readFromDisk()
	if err != nil {
		slog.Warn("failed to reload agent overrides", "error", err)
		return
	}

	r.mu.Lock()
	old := r.personas
	r.personas = personas
	listeners := make([]OnChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, a := range All {
		if old[a] == personas[a] {
			continue
		}
		for _, l := range listeners {
			l.OnAgentRoleChange(ChangeEvent{Persona: personas[a]})
		}
	}
}
