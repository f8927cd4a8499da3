package tools

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/llm"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Summarizer condenses search results into a short factual digest.
type Summarizer interface {
	Summarize(ctx context.Context, results []Result) (string, error)
}

// WebSearchTool serves the web_search action.
type WebSearchTool struct {
	searcher   Searcher
	summarizer Summarizer
	available  atomic.Bool
	log        *slog.Logger
}

func NewWebSearchTool(searcher Searcher, summarizer Summarizer, available bool, log *slog.Logger) *WebSearchTool {
	if log == nil {
		log = logger.Discard()
	}
	t := &WebSearchTool{searcher: searcher, summarizer: summarizer, log: log}
	t.available.Store(available)
	return t
}

func (t *WebSearchTool) Name() string    { return "web_search" }
func (t *WebSearchTool) Available() bool { return t.available.Load() }

// Run returns "" when the search yields nothing. With a summarizer set, a
// failed digest falls back to the formatted result list.
func (t *WebSearchTool) Run(ctx context.Context, query string) (string, error) {
	results, err := t.searcher.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	if t.summarizer != nil {
		digest, err := t.summarizer.Summarize(ctx, results)
		if err == nil && strings.TrimSpace(digest) != "" {
			return "Web search summary:\n" + digest, nil
		}
		logger.FromContext(ctx, t.log).Warn("search_summary_failed", "error", err)
	}
	return FormatResults(results), nil
}

const searchSummaryInstruction = "" +
	"You are summarizing web search results.\n\n" +
	"Rules:\n" +
	"- Use ONLY the information present in the provided search results.\n" +
	"- Do NOT add new facts, quantities, ratios, or steps.\n" +
	"- Do NOT infer missing details.\n" +
	"- Do NOT explain, justify, or comment.\n" +
	"- Do NOT mention sources, URLs, or the word \"search\".\n" +
	"- Do NOT include opinions, advice, or instructions.\n" +
	"- Use neutral, factual language.\n" +
	"- Write in short sentences.\n" +
	"- The summary must remain correct if read in isolation.\n\n" +
	"Output only the summary text."

// ResultSummarizer digests search snippets with the language model.
type ResultSummarizer struct {
	llm llm.Client
}

func NewResultSummarizer(client llm.Client) *ResultSummarizer {
	return &ResultSummarizer{llm: client}
}

func (s *ResultSummarizer) Summarize(ctx context.Context, results []Result) (string, error) {
	messages := []llm.Message{llm.System(searchSummaryInstruction)}
	for _, r := range results {
		if text := strings.TrimSpace(r.Content); text != "" {
			messages = append(messages, llm.User(text))
		}
	}
	if len(messages) == 1 {
		return "", nil
	}
	out, err := llm.Collect(ctx, s.llm, messages)
	return strings.TrimSpace(out), err
}
