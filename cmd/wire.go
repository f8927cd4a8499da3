package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"backend-go-assistant/agent"
	"backend-go-assistant/config"
	"backend-go-assistant/llm"
	"backend-go-assistant/notify"
	"backend-go-assistant/perception"
	"backend-go-assistant/planner"
	"backend-go-assistant/speech"
	"backend-go-assistant/storage"
	"backend-go-assistant/tools"
	"backend-go-assistant/transport"
)

// App holds the process-wide components. Each conversation gets its own
// Orchestrator on top of them.
type App struct {
	cfg config.Config
	log *slog.Logger

	db       *storage.DB
	llm      llm.Client
	planner  planner.Planner
	tools    *agent.ToolExecutor
	notifier *notify.Publisher
	synth    *speech.PiperCLI

	closers []func() error
}

// NewApp opens storage, builds the LLM client and planner, probes web search
// and connects to redis when configured.
func NewApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	db, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	client, err := llm.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.llm = client

	p, err := planner.New(cfg.Planner, client, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.planner = p

	a.tools = agent.NewToolExecutor(log, a.buildTools(ctx)...)

	pub, closeRedis, err := notify.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
	if err != nil {
		// Notifications are best effort.
		log.Warn("redis_unavailable", "addr", cfg.Redis.Addr, "error", err)
		pub = notify.NewPublisher(nil, cfg.Redis.Channel)
	} else {
		a.closers = append(a.closers, closeRedis)
	}
	a.notifier = pub

	if cfg.Speech.Enabled {
		synth, err := speech.NewPiperCLI(cfg.Speech.PiperBinary, cfg.Speech.ModelPath, cfg.Speech.OutputDir, log)
		if err != nil {
			log.Warn("speech_disabled", "error", err)
		} else {
			a.synth = synth
		}
	}

	log.Info("assistant_ready",
		"llm_provider", cfg.LLM.Provider,
		"planner_mode", cfg.Planner.Mode,
		"web_search", a.tools.Handles(planner.ActionWebSearch),
		"notifications", a.notifier.Enabled(),
		"speech", a.synth != nil,
	)
	return a, nil
}

func (a *App) buildTools(ctx context.Context) []tools.Tool {
	ws := a.cfg.Tools.WebSearch
	if !ws.Enabled {
		return nil
	}
	timeout := time.Duration(ws.TimeoutSeconds) * time.Second
	searx := tools.NewSearXNG(ws.BaseURL, ws.MaxResults, timeout, llm.NewHTTPClient(timeout), a.log)
	available := searx.Probe(ctx)
	if !available {
		a.log.Warn("web_search_unavailable", "base_url", ws.BaseURL)
	}

	var summarizer tools.Summarizer
	if ws.Summarize {
		summarizer = tools.NewResultSummarizer(a.llm)
	}
	return []tools.Tool{tools.NewWebSearchTool(searx, summarizer, available, a.log)}
}

// NewOrchestrator builds a fresh session over the shared components.
func (a *App) NewOrchestrator(context.Context) (*agent.Orchestrator, error) {
	oc := a.cfg.Orchestrator
	history := a.db.History()
	facts := a.db.Memory()
	summaries := a.db.Summaries()

	return agent.NewOrchestrator(agent.Options{
		SessionID:      uuid.NewString(),
		Planner:        a.planner,
		LLM:            a.llm,
		History:        history,
		Memory:         facts,
		Builder:        agent.NewContextBuilder(a.cfg.Assistant.SystemPrompt, history, facts, summaries, oc.HistoryLimit, oc.MemoryLimit),
		Tools:          a.tools,
		Summary:        agent.NewSummaryGate(history, summaries, agent.NewHistorySummarizer(a.llm), oc.SummaryTrigger, a.log),
		Perception:     perception.NewStore(),
		Auditor:        a.db,
		Notifier:       a.notifier,
		MemoryShortcut: oc.MemoryShortcut,
		Logger:         a.log,
	})
}

// Conversations adapts NewOrchestrator to the websocket handler.
func (a *App) Conversations() transport.Factory {
	return func(ctx context.Context) (transport.Conversation, error) {
		o, err := a.NewOrchestrator(ctx)
		if err != nil {
			return nil, fmt.Errorf("new conversation: %w", err)
		}
		return o, nil
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
