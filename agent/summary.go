package agent

import (
	"context"
	"log/slog"
	"strings"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/llm"
)

const (
	DefaultSummaryTrigger = 10
	// summaryWindow caps how many history rows feed a summary.
	summaryWindow = 100
)

const historySummaryInstruction = "Summarize the following conversation briefly. " +
	"Focus on facts, decisions, and user preferences. " +
	"Do not include dialogue or filler."

// HistorySummarizer asks the language model for a digest of a conversation.
type HistorySummarizer struct {
	llm llm.Client
}

func NewHistorySummarizer(client llm.Client) *HistorySummarizer {
	return &HistorySummarizer{llm: client}
}

func (s *HistorySummarizer) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := append([]llm.Message{llm.System(historySummaryInstruction)}, messages...)
	out, err := llm.Collect(ctx, s.llm, prompt)
	return strings.TrimSpace(out), err
}

// SummaryGate writes one summary per session once history reaches the trigger
// length. An existing summary is final; it is never regenerated.
type SummaryGate struct {
	history    HistoryStore
	summaries  SummaryStore
	summarizer Summarizer
	trigger    int
	log        *slog.Logger
}

func NewSummaryGate(history HistoryStore, summaries SummaryStore, summarizer Summarizer, trigger int, log *slog.Logger) *SummaryGate {
	if trigger <= 0 {
		trigger = DefaultSummaryTrigger
	}
	if log == nil {
		log = logger.Discard()
	}
	return &SummaryGate{history: history, summaries: summaries, summarizer: summarizer, trigger: trigger, log: log}
}

// Run reports whether a summary was written. Failures are logged, never returned.
func (g *SummaryGate) Run(ctx context.Context, sessionID string) bool {
	lg := logger.FromContext(ctx, g.log).With("session_id", sessionID)

	_, exists, err := g.summaries.Get(ctx, sessionID)
	if err != nil {
		lg.Warn("summary_lookup_failed", "error", err)
		return false
	}
	if exists {
		return false
	}

	rows, err := g.history.GetRecent(ctx, sessionID, summaryWindow)
	if err != nil {
		lg.Warn("summary_history_failed", "error", err)
		return false
	}
	if len(rows) < g.trigger {
		return false
	}

	messages := make([]llm.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, llm.Message{Role: r.Role, Content: r.Content})
	}

	summary, err := g.summarizer.Summarize(ctx, messages)
	if err != nil {
		lg.Warn("summary_failed", "error", err)
		return false
	}
	if summary == "" {
		lg.Warn("summary_empty")
		return false
	}
	if err := g.summaries.Set(ctx, sessionID, summary); err != nil {
		lg.Warn("summary_store_failed", "error", err)
		return false
	}
	lg.Info("summary_written", "rows", len(rows), "chars", len(summary))
	return true
}
