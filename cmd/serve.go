package cmd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/internal/telemetry"
	"backend-go-assistant/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over a websocket at /ws",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownOTel, promHandler, err := telemetry.Init(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           newRouter(app, promHandler, cfg.Server.APIKey, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("assistant_listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		log.Error("http_server_failed", "port", cfg.Server.Port, "error", err)
		return err
	}

	log.Info("server_shutdown_start")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := server.Shutdown(ctxTimeout); err != nil {
		log.Error("server_shutdown_forced", "error", err)
		return err
	}
	log.Info("server_shutdown_complete")
	return nil
}

func newRouter(app *App, promHandler http.Handler, apiKey string, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(traceIDMiddleware)
	r.Use(apiKeyMiddleware(apiKey, log))
	r.Use(requestLogMiddleware(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if promHandler != nil {
		r.Handle("/metrics", promHandler)
	}

	var opts []transport.Option
	if app.synth != nil {
		opts = append(opts, transport.WithSpeech(app.synth, "/audio/"))
		r.Handle("/audio/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(app.synth.OutputDir()))))
	}
	r.Handle("/ws", transport.NewHandler(app.Conversations(), log, opts...))

	return r
}

// apiKeyMiddleware checks X-API-Key, a bearer token, or the api_key query
// parameter (browsers cannot set headers on websocket upgrades). An empty key
// disables authentication.
func apiKeyMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	authEnabled := strings.TrimSpace(apiKey) != ""

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get("X-API-Key")
			if providedKey == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					providedKey = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if providedKey == "" {
				providedKey = r.URL.Query().Get("api_key")
			}

			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				logger.FromContext(r.Context(), log).Warn(
					"auth_failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "Invalid or missing API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// traceIDMiddleware generates or extracts a trace ID from the request header
// and adds it to the request context.
func traceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(string(logger.TraceIDKey))
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set(string(logger.TraceIDKey), traceID)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), traceID)))
	})
}

// requestLogMiddleware logs one line per request, always including trace_id when present.
func requestLogMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency_ms", time.Since(start).Milliseconds(),
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				attrs = append(attrs, "otel_trace_id", sc.TraceID().String())
			}
			logger.FromContext(r.Context(), log).Info("http_request", attrs...)
		})
	}
}
