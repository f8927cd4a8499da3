package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-go-assistant/llm"
)

func searxServer(t *testing.T, status int, results []Result) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		queries = append(queries, r.URL.Query().Get("q"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func sampleResults(n int) []Result {
	out := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Result{Title: "T" + string(rune('a'+i)), URL: "https://x", Content: "line one\nline two"})
	}
	return out
}

func TestSearXNG_SearchCapsResults(t *testing.T) {
	srv, queries := searxServer(t, http.StatusOK, sampleResults(8))
	s := NewSearXNG(srv.URL+"/", 5, time.Second, srv.Client(), nil)

	results, err := s.Search(context.Background(), "capital of France")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if (*queries)[0] != "capital of France" {
		t.Fatalf("unexpected query %q", (*queries)[0])
	}
}

func TestSearXNG_ProbeAndStatusErrors(t *testing.T) {
	ok, _ := searxServer(t, http.StatusOK, nil)
	if !NewSearXNG(ok.URL, 5, time.Second, ok.Client(), nil).Probe(context.Background()) {
		t.Fatalf("expected probe to succeed")
	}

	bad, _ := searxServer(t, http.StatusInternalServerError, nil)
	s := NewSearXNG(bad.URL, 5, time.Second, bad.Client(), nil)
	if s.Probe(context.Background()) {
		t.Fatalf("expected probe to fail on 500")
	}
	if _, err := s.Search(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults([]Result{
		{Title: "Paris", Content: " Capital of France.\nPopulation 2M "},
		{Title: "Empty", Content: ""},
	})
	want := "Web search results:\n- Paris: Capital of France. Population 2M\n- Empty: "
	if got != want {
		t.Fatalf("unexpected format\nexpected: %q\nactual:   %q", want, got)
	}
}

type stubSearcher struct {
	results []Result
	err     error
}

func (s stubSearcher) Search(context.Context, string) ([]Result, error) { return s.results, s.err }

type stubSummarizer struct {
	out string
	err error
}

func (s stubSummarizer) Summarize(context.Context, []Result) (string, error) { return s.out, s.err }

func TestWebSearchTool_Run(t *testing.T) {
	results := []Result{{Title: "Go", Content: "Go 1.24 released"}}

	tool := NewWebSearchTool(stubSearcher{results: results}, nil, true, nil)
	out, err := tool.Run(context.Background(), "go")
	if err != nil || out != "Web search results:\n- Go: Go 1.24 released" {
		t.Fatalf("unexpected run output %q err=%v", out, err)
	}

	tool = NewWebSearchTool(stubSearcher{results: results}, stubSummarizer{out: "Go 1.24 is out."}, true, nil)
	out, _ = tool.Run(context.Background(), "go")
	if out != "Web search summary:\nGo 1.24 is out." {
		t.Fatalf("unexpected summary output %q", out)
	}

	tool = NewWebSearchTool(stubSearcher{results: results}, stubSummarizer{err: errors.New("llm down")}, true, nil)
	out, _ = tool.Run(context.Background(), "go")
	if out != "Web search results:\n- Go: Go 1.24 released" {
		t.Fatalf("expected fallback to formatted results, got %q", out)
	}

	tool = NewWebSearchTool(stubSearcher{}, nil, false, nil)
	if tool.Available() {
		t.Fatalf("expected tool to be unavailable")
	}
	out, err = tool.Run(context.Background(), "go")
	if err != nil || out != "" {
		t.Fatalf("expected empty context for no results, got %q err=%v", out, err)
	}
}

func TestResultSummarizer_UsesOnlySnippets(t *testing.T) {
	s := NewResultSummarizer(llm.MockClient{})
	out, err := s.Summarize(context.Background(), []Result{{Title: "a", Content: "  "}, {Title: "b", Content: "fact"}})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out != "I heard you say: fact" {
		t.Fatalf("unexpected digest %q", out)
	}

	out, err = s.Summarize(context.Background(), []Result{{Title: "a"}})
	if err != nil || out != "" {
		t.Fatalf("expected empty digest for empty snippets, got %q err=%v", out, err)
	}
}
