package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// MockClient is a zero-dependency provider with deterministic output. It keeps
// the stack usable without any API keys and serves as the rate-limit fallback.
type MockClient struct{}

func (MockClient) Stream(ctx context.Context, messages []Message) (Stream, error) {
	if isPlannerPrompt(messages) {
		return newSliceStream(ctx, []string{buildMockPlan(lastUser(messages))}), nil
	}
	return newSliceStream(ctx, words("I heard you say: "+lastUser(messages))), nil
}

func isPlannerPrompt(messages []Message) bool {
	return len(messages) > 0 && messages[0].Role == RoleSystem && strings.Contains(messages[0].Content, `"actions"`)
}

func lastUser(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func buildMockPlan(prompt string) string {
	lower := strings.ToLower(prompt)

	// Heuristic: if the user asks for "latest" / "search" / "web", plan a search.
	actions := []map[string]any{}
	if strings.Contains(lower, "search") || strings.Contains(lower, "web") || strings.Contains(lower, "latest") {
		actions = append(actions, map[string]any{"type": "web_search", "query": prompt})
	}
	actions = append(actions, map[string]any{"type": "respond"})

	b, _ := json.Marshal(map[string]any{"actions": actions})
	return string(b)
}

// words splits s into chunks that concatenate back to s.
func words(s string) []string {
	fields := strings.SplitAfter(s, " ")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
