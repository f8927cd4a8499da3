package agent

import (
	"context"

	"backend-go-assistant/llm"
	"backend-go-assistant/memory"
)

type HistoryStore interface {
	Add(ctx context.Context, sessionID, role, content string) error
	// GetRecent returns the newest limit rows, oldest first.
	GetRecent(ctx context.Context, sessionID string, limit int) ([]memory.ChatMessage, error)
}

type MemoryStore interface {
	Add(ctx context.Context, content, category string, importance int) error
	GetRelevant(ctx context.Context, query string, limit int) ([]string, error)
}

type SummaryStore interface {
	// Get returns ok=false when the session has no summary.
	Get(ctx context.Context, sessionID string) (content string, ok bool, err error)
	Set(ctx context.Context, sessionID, content string) error
}

// Summarizer produces a short factual digest of a conversation.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.Message) (string, error)
}

// Auditor records turn steps. Optional.
type Auditor interface {
	RecordStep(ctx context.Context, traceID, sessionID, eventType string, data any) error
}

// Notifier publishes turn status and results. Optional.
type Notifier interface {
	PublishStatus(ctx context.Context, sessionID, status string) error
	PublishResult(ctx context.Context, sessionID, result string) error
}
