// Package transport exposes the assistant over a websocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"backend-go-assistant/agent"
	"backend-go-assistant/internal/logger"
	"backend-go-assistant/speech"
)

const (
	FrameStart = "assistant_start"
	FrameState = "assistant_state"
	FrameChunk = "assistant_chunk"
	FrameAudio = "assistant_audio"
	FrameEnd   = "assistant_end"
	FrameError = "error"

	writeWait = 10 * time.Second
)

// Frame is one server-to-client message.
type Frame struct {
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// Conversation is one session's turn pipeline; *agent.Orchestrator satisfies it.
type Conversation interface {
	SessionID() string
	HandleUserInput(ctx context.Context, text string) iter.Seq2[agent.Event, error]
}

// Factory builds a fresh Conversation for each connection.
type Factory func(ctx context.Context) (Conversation, error)

type Handler struct {
	newConversation Factory
	synth           speech.Synthesizer
	audioPrefix     string
	upgrader        websocket.Upgrader
	log             *slog.Logger
}

type Option func(*Handler)

// WithSpeech synthesizes each completed sentence and announces it as an
// assistant_audio frame whose URL is urlPrefix + file name.
func WithSpeech(s speech.Synthesizer, urlPrefix string) Option {
	return func(h *Handler) {
		h.synth = s
		h.audioPrefix = urlPrefix
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

func NewHandler(factory Factory, log *slog.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	h := &Handler{
		newConversation: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lg := logger.FromContext(r.Context(), h.log)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lg.Warn("ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	// The request context is not canceled for hijacked connections; the reader
	// owns cancellation instead.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conv, err := h.newConversation(ctx)
	if err != nil {
		lg.Error("conversation_init_failed", "error", err)
		_ = writeFrame(conn, Frame{Type: FrameError, Message: "assistant unavailable"})
		return
	}
	lg = lg.With("session_id", conv.SessionID())
	lg.Info("ws_connected", "remote_addr", r.RemoteAddr)

	inputs := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(inputs)
		defer cancel()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			if kind != websocket.TextMessage {
				continue
			}
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}
			select {
			case inputs <- text:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		// Unblocks the reader when a write fails.
		defer conn.Close()
		for text := range inputs {
			if err := h.runTurn(gctx, conn, conv, text); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !isClosedConn(err) {
		lg.Warn("ws_closed_with_error", "error", err)
	}
	lg.Info("ws_disconnected")
}

// runTurn forwards one turn's events. Only write failures are returned; a
// failed turn is reported to the client as an error frame.
func (h *Handler) runTurn(ctx context.Context, conn *websocket.Conn, conv Conversation, text string) error {
	lg := logger.FromContext(ctx, h.log).With("session_id", conv.SessionID())

	if err := writeFrame(conn, Frame{Type: FrameStart}); err != nil {
		return err
	}

	var pending string
	for ev, turnErr := range conv.HandleUserInput(ctx, text) {
		if turnErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lg.Error("turn_failed", "error", turnErr)
			return writeFrame(conn, Frame{Type: FrameError, Message: turnErr.Error()})
		}

		switch e := ev.(type) {
		case agent.StateEvent:
			if err := writeFrame(conn, Frame{Type: FrameState, State: string(e.State)}); err != nil {
				return err
			}
		case agent.SpeechEvent:
			if e.IsFinal {
				if err := h.speak(ctx, conn, []string{pending}); err != nil {
					return err
				}
				pending = ""
				if err := writeFrame(conn, Frame{Type: FrameEnd, Content: e.Text}); err != nil {
					return err
				}
				continue
			}
			if err := writeFrame(conn, Frame{Type: FrameChunk, Content: e.Text}); err != nil {
				return err
			}
			if h.synth != nil {
				var sentences []string
				sentences, pending = speech.SplitSentences(pending + e.Text)
				if err := h.speak(ctx, conn, sentences); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// speak synthesizes each sentence. Synthesis failures are logged and skipped.
func (h *Handler) speak(ctx context.Context, conn *websocket.Conn, sentences []string) error {
	if h.synth == nil {
		return nil
	}
	for _, s := range sentences {
		if strings.TrimSpace(s) == "" {
			continue
		}
		name, err := h.synth.Synthesize(ctx, s)
		if err != nil {
			logger.FromContext(ctx, h.log).Warn("speech_failed", "error", err)
			continue
		}
		if err := writeFrame(conn, Frame{Type: FrameAudio, URL: h.audioPrefix + name}); err != nil {
			return err
		}
	}
	return nil
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isClosedConn(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed)
}
