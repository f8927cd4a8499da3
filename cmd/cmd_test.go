package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend-go-assistant/config"
	"backend-go-assistant/internal/logger"
	"backend-go-assistant/storage"
	"backend-go-assistant/transport"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.LLM.Provider = "mock"
	cfg.Planner.Mode = "rule"
	cfg.Tools.WebSearch.Enabled = false
	cfg.Storage.Driver = storage.DriverPureGo
	cfg.Storage.Path = filepath.Join(t.TempDir(), "assistant.db")
	cfg.Redis.Addr = ""
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(t), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestChatLoop_StreamsRepliesUntilExit(t *testing.T) {
	app := newTestApp(t)
	conv, err := app.NewOrchestrator(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("hello there\n\n  QUIT \nnever read\n")
	require.NoError(t, chatLoop(context.Background(), conv, in, &out))

	got := out.String()
	assert.Contains(t, got, "I heard you say: hello there")
	assert.NotContains(t, got, "never read")
}

func TestChatLoop_EOFEndsCleanly(t *testing.T) {
	app := newTestApp(t)
	conv, err := app.NewOrchestrator(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), conv, strings.NewReader("hi"), &out))
	assert.Contains(t, out.String(), "I heard you say: hi")
}

func TestNewApp_RejectsUnknownPlannerMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Planner.Mode = "psychic"
	_, err := NewApp(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
}

func TestNewOrchestrator_FreshSessionPerConversation(t *testing.T) {
	app := newTestApp(t)
	a, err := app.NewOrchestrator(context.Background())
	require.NoError(t, err)
	b, err := app.NewOrchestrator(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestRouter_HealthAndWebsocket(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(newRouter(app, nil, "", logger.Discard()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(string(logger.TraceIDKey)))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	var end transport.Frame
	for {
		var f transport.Frame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&f))
		require.NotEqual(t, transport.FrameError, f.Type, f.Message)
		if f.Type == transport.FrameEnd {
			end = f
			break
		}
	}
	assert.Equal(t, "I heard you say: hello", end.Content)
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := apiKeyMiddleware("secret", logger.Discard())(ok)

	cases := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"health is open", "/health", nil, http.StatusNoContent},
		{"missing key", "/ws", nil, http.StatusUnauthorized},
		{"wrong key", "/ws", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", "/ws", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"bearer token", "/ws", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
		{"query param", "/ws?api_key=secret", nil, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	open := apiKeyMiddleware("", logger.Discard())(ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTraceIDMiddleware_PropagatesHeader(t *testing.T) {
	var seen string
	h := traceIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logger.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(string(logger.TraceIDKey), "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(string(logger.TraceIDKey)))
}

func TestRenderConfig_RedactsSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = "sk-live"
	cfg.Server.APIKey = "hunter2"

	out, err := renderConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-live")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "provider: mock")
}
