package agent

import (
	"context"
	"testing"

	"backend-go-assistant/planner"
)

func TestToolExecutor_EmptyQueryFallsBackToUserText(t *testing.T) {
	tool := &fakeTool{name: "web_search", available: true, out: "ctx"}
	e := NewToolExecutor(nil, tool)

	var signalled []State
	out := e.Execute(context.Background(), planner.WebSearch(""), "weather today", func(s State) bool {
		signalled = append(signalled, s)
		return true
	})
	if out != "ctx" {
		t.Fatalf("expected tool output, got %q", out)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "weather today" {
		t.Fatalf("expected fallback query, got %v", tool.queries)
	}
	if len(signalled) != 1 || signalled[0] != StateSearching {
		t.Fatalf("expected one searching signal, got %v", signalled)
	}
}

func TestToolExecutor_PanicYieldsEmpty(t *testing.T) {
	e := NewToolExecutor(nil, &fakeTool{name: "web_search", available: true, panicMsg: "kaboom"})
	if out := e.Execute(context.Background(), planner.WebSearch("q"), "q", nil); out != "" {
		t.Fatalf("expected empty output after panic, got %q", out)
	}
}

func TestToolExecutor_MissingToolYieldsEmpty(t *testing.T) {
	e := NewToolExecutor(nil)
	if e.Handles(planner.ActionWebSearch) {
		t.Fatalf("empty executor should not handle web_search")
	}
	if out := e.Execute(context.Background(), planner.WebSearch("q"), "q", nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestToolExecutor_StoppedConsumerSkipsRun(t *testing.T) {
	tool := &fakeTool{name: "web_search", available: true, out: "ctx"}
	e := NewToolExecutor(nil, tool)
	out := e.Execute(context.Background(), planner.WebSearch("q"), "q", func(State) bool { return false })
	if out != "" || len(tool.queries) != 0 {
		t.Fatalf("tool should not run once the consumer has gone, out=%q queries=%v", out, tool.queries)
	}
}
