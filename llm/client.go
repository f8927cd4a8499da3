package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"backend-go-assistant/config"
	"backend-go-assistant/internal/logger"
)

type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
	ProviderMock       Provider = "mock"
)

// NewClient builds the configured provider wrapped in a circuit breaker.
func NewClient(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Client, error) {
	if log == nil {
		log = logger.Discard()
	}
	opts := GenerationOptions{Temperature: cfg.Temperature, TopP: cfg.TopP, MaxTokens: cfg.MaxTokens}
	headerTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	var inner Client
	switch Provider(strings.ToLower(strings.TrimSpace(cfg.Provider))) {
	case ProviderMock:
		// Zero-dependency local/dev mode.
		return MockClient{}, nil

	case ProviderOllama, "":
		model := cfg.Model
		if model == "" {
			model = "llama3"
		}
		inner = NewOpenAIClient(ProviderOllama, normalizeOllamaBaseURL(cfg.BaseURL), "", model, opts, NewHTTPClient(headerTimeout), log)

	case ProviderOpenRouter:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required when llm.provider=openrouter")
		}
		base := cfg.BaseURL
		if base == "" || strings.Contains(base, "11434") {
			base = defaultOpenRouterBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = "mistralai/mistral-7b-instruct:free"
		}
		inner = NewOpenAIClient(ProviderOpenRouter, base, cfg.APIKey, model, opts, NewHTTPClient(headerTimeout), log).
			WithRateLimitFallback(MockClient{})

	case ProviderGemini:
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, opts)
		if err != nil {
			return nil, err
		}
		inner = g

	default:
		return nil, fmt.Errorf("unsupported llm.provider=%q (supported: ollama, openrouter, gemini, mock)", cfg.Provider)
	}

	return NewBreakerClient(string(cfg.Provider), inner, log), nil
}

// BreakerClient guards stream opens with a circuit breaker so a dead provider
// fails fast instead of stalling every turn.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// Circuit breaker defaults:
// - Open after 5 consecutive failures.
// - Stay open for 30s, then allow 1 request (half-open) to probe recovery.
func NewBreakerClient(name string, inner Client, log *slog.Logger) *BreakerClient {
	if name == "" {
		name = "llm"
	}
	return &BreakerClient{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm_" + name,
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

func (b *BreakerClient) Stream(ctx context.Context, messages []Message) (Stream, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Stream(ctx, messages)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("llm circuit open: %w", err)
		}
		return nil, err
	}
	stream, _ := out.(Stream)
	if stream == nil {
		return nil, fmt.Errorf("unexpected stream type from llm client")
	}
	return stream, nil
}
