package agent

import (
	"context"
	"fmt"
	"strings"

	"backend-go-assistant/llm"
	"backend-go-assistant/memory"
)

const (
	DefaultHistoryLimit = 6
	DefaultMemoryLimit  = 5

	// historyLimitWithSummary applies once a summary covers older turns.
	historyLimitWithSummary = 2

	memoryHeader  = "The following information is known about the user and should be considered when responding:"
	summaryHeader = "Summary of previous conversation:"
)

// ContextBuilder assembles the prompt for one reply, in this order: system
// prompt, tool context, relevant memory, summary, recent user history, current input.
type ContextBuilder struct {
	systemPrompt string
	history      HistoryStore
	memory       MemoryStore
	summaries    SummaryStore
	historyLimit int
	memoryLimit  int
}

// NewContextBuilder applies the default limits when historyLimit or memoryLimit is <= 0.
// summaries may be nil.
func NewContextBuilder(systemPrompt string, history HistoryStore, mem MemoryStore, summaries SummaryStore, historyLimit, memoryLimit int) *ContextBuilder {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		history:      history,
		memory:       mem,
		summaries:    summaries,
		historyLimit: historyLimit,
		memoryLimit:  memoryLimit,
	}
}

// Build never returns an empty slice; the last message is always the current
// input, verbatim.
func (b *ContextBuilder) Build(ctx context.Context, sessionID, userText, toolContext string) ([]llm.Message, error) {
	messages := []llm.Message{llm.System(b.systemPrompt)}

	if strings.TrimSpace(toolContext) != "" {
		messages = append(messages, llm.System(toolContext))
	}

	facts, err := b.memory.GetRelevant(ctx, userText, b.memoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load relevant memory: %w", err)
	}
	if len(facts) > 0 {
		var sb strings.Builder
		sb.WriteString(memoryHeader)
		for _, f := range facts {
			sb.WriteString("\n- ")
			sb.WriteString(f)
		}
		messages = append(messages, llm.System(sb.String()))
	}

	historyLimit := b.historyLimit
	if b.summaries != nil {
		summary, ok, err := b.summaries.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load summary: %w", err)
		}
		if ok && strings.TrimSpace(summary) != "" {
			messages = append(messages, llm.System(summaryHeader+"\n"+summary))
			historyLimit = historyLimitWithSummary
		}
	}

	rows, err := b.history.GetRecent(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	current := strings.TrimSpace(userText)
	seen := map[string]struct{}{}
	for _, row := range rows {
		if row.Role != memory.RoleUser {
			continue
		}
		content := strings.TrimSpace(row.Content)
		if content == "" || content == current {
			continue
		}
		if _, dup := seen[content]; dup {
			continue
		}
		seen[content] = struct{}{}
		messages = append(messages, llm.User(content))
	}

	return append(messages, llm.User(userText)), nil
}
