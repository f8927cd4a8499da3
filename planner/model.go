package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/llm"
	"backend-go-assistant/perception"
)

const DefaultTimeout = 1500 * time.Millisecond

const plannerInstruction = "" +
	"You are a planner for an AI assistant.\n" +
	"Decide what actions to take.\n" +
	"Use the current environment context if helpful.\n" +
	"Output ONLY valid JSON.\n\n" +
	"Current perception:\n" +
	"%s\n\n" +
	"Schema:\n" +
	"{\n" +
	"  \"actions\": [\n" +
	"    { \"type\": \"web_search\", \"query\": string } | { \"type\": \"respond\" } |\n" +
	"    { \"type\": \"write_memory\", \"content\": string }\n" +
	"  ]\n" +
	"}"

// ModelPlanner asks the language model for a JSON action list.
type ModelPlanner struct {
	llm     llm.Client
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

type ModelOption func(*ModelPlanner)

// WithClock replaces time.Now. time.Now readings carry the monotonic clock, so
// elapsed time is immune to wall-clock jumps.
func WithClock(now func() time.Time) ModelOption {
	return func(p *ModelPlanner) { p.now = now }
}

func NewModelPlanner(client llm.Client, timeout time.Duration, log *slog.Logger, opts ...ModelOption) *ModelPlanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	p := &ModelPlanner{llm: client, timeout: timeout, now: time.Now, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide never fails. Any error or unusable output yields [respond].
func (p *ModelPlanner) Decide(ctx context.Context, text string, snapshot perception.Snapshot) Plan {
	plan, _ := p.TryDecide(ctx, text, snapshot)
	return plan
}

// TryDecide returns the same plan as Decide plus any infrastructure error
// (stream could not be opened, or broke for a reason other than the timeout).
// Parse problems are not errors.
func (p *ModelPlanner) TryDecide(ctx context.Context, text string, snapshot perception.Snapshot) (Plan, error) {
	start := p.now()
	lg := logger.FromContext(ctx, p.log)

	// Bounds a silent stream; the per-chunk check below handles chatty ones.
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := []llm.Message{
		llm.System(fmt.Sprintf(plannerInstruction, FormatPerception(snapshot))),
		llm.User(text),
	}

	stream, err := p.llm.Stream(callCtx, messages)
	if err != nil {
		lg.Warn("model_planner_stream_failed", "error", err)
		return DefaultPlan(), fmt.Errorf("open planner stream: %w", err)
	}
	defer stream.Close()

	var buf strings.Builder
	var streamErr error
	timedOut := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if callCtx.Err() != nil && ctx.Err() == nil {
				timedOut = true
			} else {
				streamErr = fmt.Errorf("planner stream: %w", err)
			}
			break
		}
		buf.WriteString(chunk)
		if p.now().Sub(start) > p.timeout {
			timedOut = true
			break
		}
	}
	if timedOut {
		lg.Warn("model_planner_timeout", "timeout_ms", p.timeout.Milliseconds(), "buffered", buf.Len())
	}
	if streamErr != nil {
		lg.Warn("model_planner_stream_error", "error", streamErr)
	}

	plan, fallback := p.parse(lg, buf.String())
	if fallback != "" {
		if timedOut {
			fallback = "timeout"
		}
		recordFallback(ctx, fallback)
	}
	lg.Info("model_planner_decision", "actions", plan.Types(), "timed_out", timedOut)
	return plan, streamErr
}

type rawPlan struct {
	Actions []map[string]any `json:"actions"`
}

// parse returns the decoded plan, or DefaultPlan plus the fallback reason
// ("parse" or "empty") when raw carries nothing usable.
func (p *ModelPlanner) parse(lg *slog.Logger, raw string) (Plan, string) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		lg.Warn("model_planner_no_json", "raw", raw)
		return DefaultPlan(), "parse"
	}

	var decoded rawPlan
	if err := json.Unmarshal([]byte(obj), &decoded); err != nil {
		lg.Warn("model_planner_bad_json", "error", err)
		return DefaultPlan(), "parse"
	}

	actions := make([]Action, 0, len(decoded.Actions))
	for _, item := range decoded.Actions {
		typ, _ := item["type"].(string)
		switch ActionType(typ) {
		case ActionWebSearch:
			q, _ := item["query"].(string)
			actions = append(actions, WebSearch(q))
		case ActionWriteMemory:
			c, _ := item["content"].(string)
			actions = append(actions, WriteMemory(c))
		case ActionRespond:
			actions = append(actions, Respond())
		default:
			lg.Warn("model_planner_unknown_action", "type", typ)
		}
	}
	if len(actions) == 0 {
		lg.Warn("model_planner_empty_plan")
		return DefaultPlan(), "empty"
	}
	return Plan{Actions: actions}, ""
}

// ExtractJSONObject returns the first balanced {...} span in s that decodes as
// JSON. Braces inside string literals are ignored.
func ExtractJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// FormatPerception renders a snapshot as "- key: value (age: N.Ns)" lines.
func FormatPerception(snapshot perception.Snapshot) string {
	if len(snapshot) == 0 {
		return "No additional perception available."
	}
	lines := make([]string, 0, len(snapshot))
	for _, k := range snapshot.Keys() {
		r := snapshot[k]
		lines = append(lines, fmt.Sprintf("- %s: %v (age: %.1fs)", k, r.Value, r.Age.Seconds()))
	}
	return strings.Join(lines, "\n")
}
