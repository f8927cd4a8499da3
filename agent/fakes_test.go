package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"backend-go-assistant/llm"
	"backend-go-assistant/memory"
	"backend-go-assistant/perception"
	"backend-go-assistant/planner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedLLM streams a fixed chunk list and records every prompt it sees.
type scriptedLLM struct {
	mu      sync.Mutex
	chunks  []string
	openErr error
	recvErr error
	calls   [][]llm.Message
}

func (s *scriptedLLM) Stream(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	s.mu.Lock()
	s.calls = append(s.calls, messages)
	s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &chunkStream{chunks: append([]string(nil), s.chunks...), err: s.recvErr}, nil
}

func (s *scriptedLLM) lastCall() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type chunkStream struct {
	chunks []string
	err    error
}

func (c *chunkStream) Recv() (string, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return "", c.err
		}
		return "", io.EOF
	}
	next := c.chunks[0]
	c.chunks = c.chunks[1:]
	return next, nil
}

func (c *chunkStream) Close() error { return nil }

type memHistory struct {
	mu     sync.Mutex
	rows   []memory.ChatMessage
	addErr error
}

func (h *memHistory) Add(_ context.Context, sessionID, role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.addErr != nil {
		return h.addErr
	}
	h.rows = append(h.rows, memory.ChatMessage{ID: int64(len(h.rows) + 1), SessionID: sessionID, Role: role, Content: content})
	return nil
}

func (h *memHistory) GetRecent(_ context.Context, sessionID string, limit int) ([]memory.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var mine []memory.ChatMessage
	for _, r := range h.rows {
		if r.SessionID == sessionID {
			mine = append(mine, r)
		}
	}
	if limit <= 0 {
		return nil, nil
	}
	if len(mine) > limit {
		mine = mine[len(mine)-limit:]
	}
	return mine, nil
}

type memFacts struct {
	mu     sync.Mutex
	facts  []memory.Fact
	addErr error
}

func (m *memFacts) Add(_ context.Context, content, category string, importance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.facts = append(m.facts, memory.Fact{ID: int64(len(m.facts) + 1), Content: content, Category: category, Importance: importance})
	return nil
}

func (m *memFacts) GetRelevant(_ context.Context, query string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memory.Rank(query, m.facts, limit), nil
}

type memSummaries struct {
	mu   sync.Mutex
	byID map[string]string
}

func newMemSummaries() *memSummaries { return &memSummaries{byID: map[string]string{}} }

func (s *memSummaries) Get(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[sessionID]
	return v, ok, nil
}

func (s *memSummaries) Set(_ context.Context, sessionID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sessionID] = content
	return nil
}

type countingSummarizer struct {
	calls int
	out   string
	err   error
}

func (c *countingSummarizer) Summarize(context.Context, []llm.Message) (string, error) {
	c.calls++
	return c.out, c.err
}

type fixedPlanner struct{ plan planner.Plan }

func (f fixedPlanner) Decide(context.Context, string, perception.Snapshot) planner.Plan { return f.plan }

type fakeTool struct {
	name      string
	available bool
	out       string
	outs      []string // per-call outputs; out is used once these run out
	err       error
	panicMsg  string
	queries   []string
}

func (f *fakeTool) Name() string    { return f.name }
func (f *fakeTool) Available() bool { return f.available }
func (f *fakeTool) Run(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if len(f.outs) > 0 {
		out := f.outs[0]
		f.outs = f.outs[1:]
		return out, f.err
	}
	return f.out, f.err
}

type recordingNotifier struct {
	statuses []string
	results  []string
}

func (n *recordingNotifier) PublishStatus(_ context.Context, _, status string) error {
	n.statuses = append(n.statuses, status)
	return nil
}

func (n *recordingNotifier) PublishResult(_ context.Context, _, result string) error {
	n.results = append(n.results, result)
	return nil
}

var errBoom = errors.New("boom")

// collect drains a turn, returning its events and the terminal error if any.
func collect(t *testing.T, o *Orchestrator, text string) ([]Event, error) {
	t.Helper()
	var events []Event
	for ev, err := range o.HandleUserInput(context.Background(), text) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func states(events []Event) []State {
	var out []State
	for _, e := range events {
		if s, ok := e.(StateEvent); ok {
			out = append(out, s.State)
		}
	}
	return out
}
