package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/planner"
	"backend-go-assistant/tools"
)

// ToolExecutor runs tool-backed actions. A missing, unavailable or failing tool
// yields an empty context; it never fails the turn.
type ToolExecutor struct {
	tools map[planner.ActionType]tools.Tool
	log   *slog.Logger
}

// NewToolExecutor registers each tool under the action type equal to its Name.
func NewToolExecutor(log *slog.Logger, ts ...tools.Tool) *ToolExecutor {
	if log == nil {
		log = logger.Discard()
	}
	m := make(map[planner.ActionType]tools.Tool, len(ts))
	for _, t := range ts {
		if t != nil {
			m[planner.ActionType(t.Name())] = t
		}
	}
	return &ToolExecutor{tools: m, log: log}
}

func (e *ToolExecutor) Handles(t planner.ActionType) bool {
	_, ok := e.tools[t]
	return ok
}

// Execute signals StateSearching before running the tool. If signal returns
// false the caller has gone away and the tool is not run.
func (e *ToolExecutor) Execute(ctx context.Context, action planner.Action, userText string, signal func(State) bool) (out string) {
	lg := logger.FromContext(ctx, e.log).With("tool", string(action.Type))

	tool, ok := e.tools[action.Type]
	if !ok {
		lg.Warn("tool_not_registered")
		return ""
	}
	if !tool.Available() {
		lg.Warn("tool_unavailable")
		return ""
	}
	if signal != nil && !signal(StateSearching) {
		return ""
	}

	query := action.Query()
	if query == "" {
		query = userText
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lg.Error("tool_failed", "error", fmt.Sprint(r), "panic", true)
			out = ""
		}
	}()

	result, err := tool.Run(ctx, query)
	if err != nil {
		lg.Error("tool_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return ""
	}
	lg.Info("tool_completed", "duration_ms", time.Since(start).Milliseconds(), "context_chars", len(result))
	return result
}
