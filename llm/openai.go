package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"backend-go-assistant/internal/logger"
)

const (
	defaultOllamaBaseURL     = "http://localhost:11434"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// NewHTTPClient is a long-lived client with connection pooling and outbound
// request tracing. headerTimeout bounds the wait for response headers only, so a
// streamed body may run longer; zero disables it. Other deadlines come from ctx.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

func normalizeOllamaBaseURL(base string) string {
	// Ollama's OpenAI-compatible endpoint is typically at /v1
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = defaultOllamaBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

type GenerationOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// OpenAIClient streams from any OpenAI-compatible endpoint (Ollama, OpenRouter).
type OpenAIClient struct {
	client   *openai.Client
	model    string
	opts     GenerationOptions
	provider Provider
	// fallback serves the turn when the upstream rate-limits (HTTP 429).
	fallback Client
	log      *slog.Logger
}

func NewOpenAIClient(provider Provider, baseURL, apiKey, model string, opts GenerationOptions, httpClient *http.Client, log *slog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if log == nil {
		log = logger.Discard()
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		opts:     opts,
		provider: provider,
		log:      log,
	}
}

// WithRateLimitFallback sets the client used when the upstream answers 429.
func (c *OpenAIClient) WithRateLimitFallback(fallback Client) *OpenAIClient {
	c.fallback = fallback
	return c
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		if c.fallback != nil && isRateLimited(err) {
			logger.FromContext(ctx, c.log).Warn("llm_rate_limited_falling_back_to_mock", "provider", string(c.provider), "model", c.model, "error", err)
			return c.fallback.Stream(ctx, messages)
		}
		return nil, fmt.Errorf("%s chat stream: %w", c.provider, err)
	}
	return &openAIStream{stream: stream}, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
