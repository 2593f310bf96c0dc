package session

import (
	"errors"

	"github.com/robert2687/pers-code-assist/agentrole"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotStreamingTarget is returned when the last message of a session
	// is not a Model message and therefore cannot be mutated.
	ErrNotStreamingTarget = errors.New("last message is not a model message")
)

// DefaultTitle is the title of a session until it is renamed.
const DefaultTitle = "New Chat"

// Role is the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleError Role = "error"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleModel, RoleError:
		return true
	default:
		return false
	}
}

// Message is one entry of a conversation. Agent is set on model and error
// messages only.
type Message struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	ImageURLs []string        `json:"imageUrls,omitempty"`
	Agent     agentrole.Agent `json:"agent,omitempty"`
}

// ChatSession is one conversation thread of an agent.
type ChatSession struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Operation represents the type of change made to the store.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationSelect Operation = "select"
	// OperationMessage means Message now sits at Index. Index equal to the
	// previous length is an append.
	OperationMessage Operation = "message"
	// OperationMessageRemove means the message at Index was removed.
	OperationMessageRemove Operation = "message_remove"
)

// ChangeEvent describes one mutation.
// For create/update/delete/select: Session carries ID and Title.
// For message ops: Session.ID identifies the session, Index and Message
// the affected entry.
// ActiveID is the agent's active session after the mutation.
type ChangeEvent struct {
	Op       Operation
	Agent    agentrole.Agent
	Session  ChatSession
	ActiveID string
	Index    int
	Message  Message
}

// OnChangeListener receives notifications when the store changes.
//
// Contract: OnSessionChange is called while the store's mutex is held so
// events arrive in mutation order. Implementations must not block and must
// not call back into the store.
type OnChangeListener interface {
	OnSessionChange(event ChangeEvent)
}

// IntroSource provides the seed message text of new sessions.
type IntroSource interface {
	IntroMessage(a agentrole.Agent) string
}
