package planner

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/perception"
)

var memoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bremember that\b`),
	regexp.MustCompile(`(?i)\bremember this\b`),
	regexp.MustCompile(`(?i)\bplease remember\b`),
	regexp.MustCompile(`(?i)\bnote that\b`),
	regexp.MustCompile(`(?i)\bsave this\b`),
}

// Matched against lower-cased, trimmed text.
var searchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\blatest\b`),
	regexp.MustCompile(`\bcurrent\b`),
	regexp.MustCompile(`\btoday\b`),
	regexp.MustCompile(`\bnews\b`),
	regexp.MustCompile(`^what is\b`),
	regexp.MustCompile(`^who is\b`),
	regexp.MustCompile(`^when did\b`),
	regexp.MustCompile(`^where is\b`),
}

// ExtractMemoryCommand reports whether text is a memory command and returns the
// content following the trigger phrase. Content may be empty on a match.
func ExtractMemoryCommand(text string) (content string, matched bool) {
	for _, re := range memoryPatterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		return strings.TrimFunc(text[loc[1]:], func(r rune) bool {
			return unicode.IsSpace(r) || r == ':' || r == '.' || r == '-'
		}), true
	}
	return "", false
}

// IsSearchQuery reports whether text looks like a time-sensitive or factual question.
func IsSearchQuery(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, re := range searchPatterns {
		if re.MatchString(lowered) {
			return true
		}
	}
	return false
}

type RulePlanner struct {
	log *slog.Logger
}

func NewRulePlanner(log *slog.Logger) *RulePlanner {
	if log == nil {
		log = logger.Discard()
	}
	return &RulePlanner{log: log}
}

// Decide checks memory commands before search intent; an utterance can satisfy
// both and a memory command is an explicit directive.
func (p *RulePlanner) Decide(ctx context.Context, text string, _ perception.Snapshot) Plan {
	lg := logger.FromContext(ctx, p.log)

	if content, ok := ExtractMemoryCommand(text); ok {
		if content == "" {
			lg.Warn("memory_command_without_content")
			return DefaultPlan()
		}
		lg.Info("rule_planner_decision", "plan", "write_memory+respond")
		return NewPlan(WriteMemory(content), Respond())
	}

	if IsSearchQuery(text) {
		lg.Info("rule_planner_decision", "plan", "web_search+respond")
		return NewPlan(WebSearch(text), Respond())
	}

	lg.Debug("rule_planner_decision", "plan", "respond")
	return DefaultPlan()
}
