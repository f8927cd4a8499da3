// Package planner decides, per user turn, which actions the assistant takes
// before it replies.
package planner

import (
	"context"

	"backend-go-assistant/perception"
)

type ActionType string

const (
	ActionRespond     ActionType = "respond"
	ActionWebSearch   ActionType = "web_search"
	ActionWriteMemory ActionType = "write_memory"
)

// Action is a single directive. Treat it as read-only once built.
type Action struct {
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func Respond() Action { return Action{Type: ActionRespond} }

func WebSearch(query string) Action {
	return Action{Type: ActionWebSearch, Payload: map[string]any{"query": query}}
}

func WriteMemory(content string) Action {
	return Action{Type: ActionWriteMemory, Payload: map[string]any{"content": content}}
}

func (a Action) str(key string) string {
	if a.Payload == nil {
		return ""
	}
	s, _ := a.Payload[key].(string)
	return s
}

// Query returns payload.query, or "" when absent.
func (a Action) Query() string { return a.str("query") }

// Content returns payload.content, or "" when absent.
func (a Action) Content() string { return a.str("content") }

// Plan is executed left to right; the first respond ends execution.
type Plan struct {
	Actions []Action `json:"actions"`
}

func NewPlan(actions ...Action) Plan { return Plan{Actions: actions} }

// DefaultPlan is [respond].
func DefaultPlan() Plan { return NewPlan(Respond()) }

func (p Plan) Empty() bool { return len(p.Actions) == 0 }

// IsDefault reports whether p is exactly [respond].
func (p Plan) IsDefault() bool {
	return len(p.Actions) == 1 && p.Actions[0].Type == ActionRespond
}

// Types lists the action types in order. Used for logging and audit.
func (p Plan) Types() []string {
	out := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, string(a.Type))
	}
	return out
}

// Planner turns user text plus a perception snapshot into a Plan. Implementations
// never fail; every error degrades to a usable plan.
type Planner interface {
	Decide(ctx context.Context, text string, snapshot perception.Snapshot) Plan
}
