package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"backend-go-assistant/internal/logger"
)

const (
	defaultMaxResults   = 5
	defaultProbeTimeout = 3 * time.Second
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearXNG queries a SearXNG instance's JSON API.
type SearXNG struct {
	baseURL    string
	maxResults int
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
}

func NewSearXNG(baseURL string, maxResults int, timeout time.Duration, httpClient *http.Client, log *slog.Logger) *SearXNG {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		timeout:    timeout,
		httpClient: httpClient,
		log:        log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "searxng",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.LogCircuitBreakerStateChange(log, name, from.String(), to.String())
			},
		}),
	}
}

// Probe reports whether the instance answers a trivial query.
func (s *SearXNG) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()
	if _, err := s.fetch(ctx, "ping"); err != nil {
		logger.FromContext(ctx, s.log).Warn("web_search_probe_failed", "base_url", s.baseURL, "error", err)
		return false
	}
	logger.FromContext(ctx, s.log).Info("web_search_probe_ok", "base_url", s.baseURL)
	return true
}

// Search returns at most maxResults results.
func (s *SearXNG) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(ctx, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("searxng circuit open: %w", err)
		}
		return nil, err
	}
	results, _ := out.([]Result)
	return results, nil
}

func (s *SearXNG) fetch(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build searxng request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("searxng status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var payload struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}
	if len(payload.Results) > s.maxResults {
		payload.Results = payload.Results[:s.maxResults]
	}
	return payload.Results, nil
}

// FormatResults renders results as a "Web search results:" block with one
// "- title: snippet" line each. Snippet newlines are folded to spaces.
func FormatResults(results []Result) string {
	lines := []string{"Web search results:"}
	for _, r := range results {
		snippet := strings.ReplaceAll(strings.TrimSpace(r.Content), "\n", " ")
		lines = append(lines, fmt.Sprintf("- %s: %s", r.Title, snippet))
	}
	return strings.Join(lines, "\n")
}
