// Package chat runs conversation turns: it routes input, streams model
// output into the session store, generates images and titles sessions.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/robert2687/pers-code-assist/agent"
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/command"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
)

var (
	ErrBackendUnavailable = errors.New("AI backend is not available")
	ErrEmptyMessage       = errors.New("message is empty")
)

// PromptSource resolves an agent's system prompt.
type PromptSource interface {
	SystemPrompt(a agentrole.Agent) string
}

type Config struct {
	Store   *session.Store
	Prompts PromptSource
	// Backend agent.Unavailable (or nil) means no credential was configured:
	// every turn fails with ErrBackendUnavailable and a persistent notice is
	// shown.
	Backend agent.Backend
	Turns   *process.Manager
}

// Client coordinates chat turns across the session store, the turn manager
// and the AI backend. It is the single entry point for chat interactions.
type Client struct {
	store   *session.Store
	prompts PromptSource
	backend agent.Backend
	turns   *process.Manager
	notice  noticeBoard

	// Background work (dispatched turns, title generation)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:   cfg.Store,
		prompts: cfg.Prompts,
		backend: cfg.Backend,
		turns:   cfg.Turns,
		ctx:     ctx,
		cancel:  cancel,
	}
	if c.backend == nil {
		c.backend = agent.Unavailable{}
	}
	if !c.Available() {
		c.notice.set(Notice{Message: missingKeyNotice, Persistent: true})
	}
	return c
}

const missingKeyNotice = "API key environment variable not set."

func (c *Client) Available() bool {
	_, unavailable := c.backend.(agent.Unavailable)
	return !unavailable
}

func (c *Client) Notice() Notice { return c.notice.get() }

func (c *Client) SetNoticeListener(l NoticeListener) { c.notice.setListener(l) }

// DismissNotice clears a transient notice.
func (c *Client) DismissNotice() { c.notice.clearTransient() }

// pendingTurn is a turn that holds its token but has not run yet.
type pendingTurn struct {
	token   *process.Turn
	agent   agentrole.Agent
	session session.ChatSession
	route   command.Route
}

// SendMessage runs one turn in sessionID (the agent's active session when
// empty) and returns when the turn is over. Backend failures are recorded
// in the session and the notice, not returned. Cancelling ctx interrupts
// the turn.
func (c *Client) SendMessage(ctx context.Context, a agentrole.Agent, sessionID, text string) error {
	p, err := c.begin(a, sessionID, text)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.turns.Interrupt(p.token.Key()) })
	defer stop()

	c.run(p)
	return nil
}

// Dispatch validates and starts a turn, then runs it in the background.
// The returned session id is the session the turn writes to.
func (c *Client) Dispatch(a agentrole.Agent, sessionID, text string) (string, error) {
	p, err := c.begin(a, sessionID, text)
	if err != nil {
		return "", err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, "chat turn crashed", "agent", a, "sessionId", p.session.ID)
				p.token.End()
			}
		}()
		c.run(p)
	}()
	return p.session.ID, nil
}

// Interrupt cancels the outstanding turn of sessionID (the active session
// when empty). Returns false when nothing was running.
func (c *Client) Interrupt(a agentrole.Agent, sessionID string) bool {
	if sessionID == "" {
		sessionID = c.store.ActiveSessionID(a)
	}
	return c.turns.Interrupt(process.Key{Agent: a, SessionID: sessionID})
}

// Wait blocks until every background turn and title request has finished.
func (c *Client) Wait() { c.wg.Wait() }

// Close abandons pending title requests and waits for background work.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Client) begin(a agentrole.Agent, sessionID, text string) (*pendingTurn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if !a.IsValid() {
		return nil, agentrole.ErrUnknownAgent
	}
	if !c.Available() {
		return nil, ErrBackendUnavailable
	}
	if sessionID == "" {
		sessionID = c.store.ActiveSessionID(a)
	}
	if _, ok := c.store.Session(a, sessionID); !ok {
		return nil, session.ErrSessionNotFound
	}

	token, err := c.turns.Begin(process.Key{Agent: a, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	// Snapshot after acquiring the token so no other turn can interleave.
	sess, ok := c.store.Session(a, sessionID)
	if !ok {
		token.End()
		return nil, session.ErrSessionNotFound
	}
	return &pendingTurn{
		token:   token,
		agent:   a,
		session: sess,
		route:   command.Parse(text, a),
	}, nil
}

func (c *Client) run(p *pendingTurn) {
	log := slog.With("agent", p.agent, "sessionId", p.session.ID, "route", p.route.Kind)
	log.Info("turn started", "input", logger.Truncate(p.route.Text, 80))

	firstTurn := len(p.session.Messages) == 1

	var ok bool
	switch p.route.Kind {
	case command.KindImage:
		ok = c.runImage(p)
	default:
		ok = c.runChat(p)
	}
	p.token.End()

	if ok {
		c.notice.clearTransient()
	}
	log.Info("turn finished", "ok", ok)

	if firstTurn {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.LogPanic(r, "title generation crashed", "sessionId", p.session.ID)
				}
			}()
			c.generateTitle(p.agent, p.session.ID, p.route.Text)
		}()
	}
}

// reportError records a backend or validation error as an Error message and
// mirrors it in the notice.
func (c *Client) reportError(p *pendingTurn, text string, replaceLast bool) {
	msg := session.Message{Role: session.RoleError, Content: text, Agent: p.agent}

	var err error
	if replaceLast {
		err = c.store.ReplaceLastMessage(p.agent, p.session.ID, msg)
	} else {
		err = c.store.AppendMessage(p.agent, p.session.ID, msg)
	}
	if err != nil {
		slog.Warn("could not record turn error", "sessionId", p.session.ID, "error", err)
	}
	c.notice.set(Notice{Message: text})
}
