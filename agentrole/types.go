// Package agentrole defines the fixed chat personas and their prompts.
package agentrole

import "errors"

var ErrUnknownAgent = errors.New("unknown agent")

// Agent identifies one of the fixed personas.
type Agent string

const (
	Default           Agent = "Default"
	SystemsArchitect  Agent = "Systems Architect"
	BehavioralModeler Agent = "Behavioral Modeler"
	DigitalTwin       Agent = "Digital Twin"
	APIIntegration    Agent = "API Integration"
)

// All lists every agent in display order.
var All = []Agent{
	Default,
	SystemsArchitect,
	BehavioralModeler,
	DigitalTwin,
	APIIntegration,
}

// IsValid returns true if the agent is one of the fixed personas.
func (a Agent) IsValid() bool {
	switch a {
	case Default, SystemsArchitect, BehavioralModeler, DigitalTwin, APIIntegration:
		return true
	default:
		return false
	}
}

// Parse converts a wire value into an Agent.
func Parse(s string) (Agent, error) {
	a := Agent(s)
	if !a.IsValid() {
		return "", ErrUnknownAgent
	}
	return a, nil
}

// Persona is the prompt configuration of an agent.
type Persona struct {
	Agent        Agent  `json:"agent"`
	SystemPrompt string `json:"system_prompt"`
	IntroMessage string `json:"intro_message"`
}

// ChangeEvent is emitted when a persona's prompts change after an
// overrides reload.
type ChangeEvent struct {
	Persona Persona
}

// OnChangeListener receives notifications when persona prompts change.
//
// Contract: OnAgentRoleChange is called outside the registry's mutex, but
// listeners that call back into the registry MUST do so in a separate
// goroutine to avoid re-entrant deadlock.
type OnChangeListener interface {
	OnAgentRoleChange(event ChangeEvent)
}
