package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"backend-go-assistant/internal/logger"
	"backend-go-assistant/llm"
	"backend-go-assistant/memory"
	"backend-go-assistant/perception"
	"backend-go-assistant/planner"
	"backend-go-assistant/storage"
)

const (
	rememberAck    = "Got it. I'll remember that."
	rememberPrompt = "What would you like me to remember?"
)

// Options wires an Orchestrator. Planner, LLM, History, Memory and Builder are
// required; everything else may be left nil.
type Options struct {
	SessionID string

	Planner    planner.Planner
	LLM        llm.Client
	History    HistoryStore
	Memory     MemoryStore
	Builder    *ContextBuilder
	Tools      *ToolExecutor
	Summary    *SummaryGate
	Perception *perception.Store
	Auditor    Auditor
	Notifier   Notifier

	// MemoryShortcut answers "remember ..." commands without calling the model.
	MemoryShortcut bool

	Logger *slog.Logger
}

// Orchestrator runs the turn pipeline for a single session. Turns on one
// Orchestrator must not overlap.
type Orchestrator struct {
	sessionID string

	planner    planner.Planner
	llm        llm.Client
	history    HistoryStore
	memory     MemoryStore
	policy     memory.Policy
	builder    *ContextBuilder
	tools      *ToolExecutor
	summary    *SummaryGate
	perception *perception.Store
	auditor    Auditor
	notifier   Notifier

	memoryShortcut bool
	log            *slog.Logger
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case opts.LLM == nil:
		return nil, errors.New("orchestrator: llm client is required")
	case opts.History == nil:
		return nil, errors.New("orchestrator: history store is required")
	case opts.Memory == nil:
		return nil, errors.New("orchestrator: memory store is required")
	case opts.Builder == nil:
		return nil, errors.New("orchestrator: context builder is required")
	}

	o := &Orchestrator{
		sessionID:      opts.SessionID,
		planner:        opts.Planner,
		llm:            opts.LLM,
		history:        opts.History,
		memory:         opts.Memory,
		builder:        opts.Builder,
		tools:          opts.Tools,
		summary:        opts.Summary,
		perception:     opts.Perception,
		auditor:        opts.Auditor,
		notifier:       opts.Notifier,
		memoryShortcut: opts.MemoryShortcut,
		log:            opts.Logger,
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.tools == nil {
		o.tools = NewToolExecutor(opts.Logger)
	}
	if o.perception == nil {
		o.perception = perception.NewStore()
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	o.log = o.log.With("session_id", o.sessionID)
	return o, nil
}

func (o *Orchestrator) SessionID() string { return o.sessionID }

// HandleUserInput runs one turn and streams its events. Sequence:
//
//	thinking, [searching], responding, chunk..., final, idle
//
// A fatal failure ends the sequence with a non-nil error. Breaking out of the
// loop early abandons the turn.
func (o *Orchestrator) HandleUserInput(ctx context.Context, text string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		initMetrics()

		tracer := otel.Tracer("backend-go-assistant")
		ctx, span := tracer.Start(ctx, "TurnExecution")
		span.SetAttributes(attribute.String("session_id", o.sessionID))

		if logger.TraceID(ctx) == "" {
			ctx = logger.WithTraceID(ctx, uuid.NewString())
		}

		start := time.Now()
		outcome := "success"
		var turnErr error
		defer func() {
			if turnDurationS != nil {
				turnDurationS.Record(ctx, time.Since(start).Seconds())
			}
			if turnCounter != nil {
				turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
			}
			if turnErr != nil {
				span.RecordError(turnErr)
				span.SetStatus(codes.Error, turnErr.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()

		t := &turn{o: o, yield: yield}
		if err := t.run(ctx, text); err != nil {
			outcome = "error"
			turnErr = err
			lg := logger.FromContext(ctx, o.log)
			lg.Error("turn_failed", "error", err)
			o.record(ctx, storage.EventTurnError, map[string]any{"error": err.Error()})
			o.publishStatus(ctx, "FAILED")
			if !t.stopped {
				yield(nil, err)
			}
			return
		}
		if t.stopped {
			outcome = "abandoned"
		}
	}
}

// turn holds the per-call emission state.
type turn struct {
	o       *Orchestrator
	yield   func(Event, error) bool
	stopped bool
}

func (t *turn) emit(e Event) bool {
	if t.stopped {
		return false
	}
	if !t.yield(e, nil) {
		t.stopped = true
	}
	return !t.stopped
}

func (t *turn) state(s State) bool { return t.emit(StateEvent{State: s}) }

func (t *turn) run(ctx context.Context, text string) error {
	o := t.o
	lg := logger.FromContext(ctx, o.log)
	lg.Info("turn_start", "input_chars", len(text))
	o.record(ctx, storage.EventTurnStart, map[string]any{"input": text})
	o.publishStatus(ctx, "STARTED")

	if !t.state(StateThinking) {
		return nil
	}
	o.perception.Update(perception.UserInput, text)

	if err := o.history.Add(ctx, o.sessionID, memory.RoleUser, text); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	if o.memoryShortcut {
		if content, matched := planner.ExtractMemoryCommand(text); matched {
			return t.rememberShortcut(ctx, content)
		}
	}

	plan := o.decide(ctx, text)

	toolContext, err := t.executePlan(ctx, text, plan)
	if err != nil || t.stopped {
		return err
	}

	messages, err := o.buildContext(ctx, text, toolContext)
	if err != nil {
		return err
	}

	if !t.state(StateResponding) {
		return nil
	}
	reply, err := t.streamReply(ctx, messages)
	if err != nil || t.stopped {
		return err
	}

	return t.finish(ctx, reply)
}

func (o *Orchestrator) decide(ctx context.Context, text string) planner.Plan {
	ctx, span := otel.Tracer("backend-go-assistant").Start(ctx, "PlanGeneration")
	defer span.End()

	plan := o.planner.Decide(ctx, text, o.perception.Snapshot())
	if plan.Empty() {
		plan = planner.DefaultPlan()
	}
	span.SetAttributes(attribute.StringSlice("actions", plan.Types()))
	logger.FromContext(ctx, o.log).Info("plan_decided", "actions", plan.Types())
	o.record(ctx, storage.EventPlan, map[string]any{"actions": plan.Actions})
	return plan
}

// executePlan runs actions in order and returns the tool context. A respond
// action ends execution; later actions are ignored.
func (t *turn) executePlan(ctx context.Context, text string, plan planner.Plan) (string, error) {
	o := t.o
	lg := logger.FromContext(ctx, o.log)
	var toolContext string

	for _, action := range plan.Actions {
		switch action.Type {
		case planner.ActionRespond:
			return toolContext, nil
		case planner.ActionWriteMemory:
			o.writeMemory(ctx, action.Payload)
		default:
			if action.Type != planner.ActionWebSearch && !o.tools.Handles(action.Type) {
				lg.Warn("unknown_action", "action", string(action.Type))
				continue
			}
			out := o.runTool(ctx, action, text, t.state)
			if t.stopped {
				return "", nil
			}
			// Last tool wins, including one that produced nothing.
			toolContext = out
		}
	}
	return toolContext, nil
}

func (o *Orchestrator) runTool(ctx context.Context, action planner.Action, text string, signal func(State) bool) string {
	ctx, span := otel.Tracer("backend-go-assistant").Start(ctx, "ToolCallExecution")
	span.SetAttributes(attribute.String("tool", string(action.Type)))
	defer span.End()

	o.record(ctx, storage.EventToolCall, map[string]any{"tool": action.Type, "payload": action.Payload})
	out := o.tools.Execute(ctx, action, text, signal)
	o.record(ctx, storage.EventToolResult, map[string]any{"tool": action.Type, "context_chars": len(out)})

	if toolCounter != nil {
		toolCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", string(action.Type)),
			attribute.Bool("has_context", out != ""),
		))
	}
	return out
}

// writeMemory never fails the turn.
func (o *Orchestrator) writeMemory(ctx context.Context, payload map[string]any) {
	lg := logger.FromContext(ctx, o.log)
	d, ok := o.policy.Decide(payload)
	if !ok {
		lg.Warn("memory_write_skipped", "reason", "empty content")
		return
	}
	if err := o.memory.Add(ctx, d.Content, d.Category, d.Importance); err != nil {
		lg.Warn("memory_write_failed", "error", err)
		return
	}
	o.record(ctx, storage.EventMemoryWrite, map[string]any{"category": d.Category, "importance": d.Importance})
}

func (o *Orchestrator) buildContext(ctx context.Context, text, toolContext string) ([]llm.Message, error) {
	ctx, span := otel.Tracer("backend-go-assistant").Start(ctx, "ContextAssembly")
	defer span.End()

	messages, err := o.builder.Build(ctx, o.sessionID, text, toolContext)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build context: %w", err)
	}
	span.SetAttributes(attribute.Int("messages", len(messages)))
	return messages, nil
}

func (t *turn) streamReply(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, span := otel.Tracer("backend-go-assistant").Start(ctx, "ResponseGeneration")
	defer span.End()

	stream, err := t.o.llm.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("open llm stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("llm stream: %w", err)
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if !t.emit(SpeechEvent{Text: chunk}) {
			return "", nil
		}
	}
	span.SetAttributes(attribute.Int("reply_chars", sb.Len()))
	return sb.String(), nil
}

// finish persists the reply, emits the final event and idles. Summarization runs
// after idle so a slow summary never delays the reply.
func (t *turn) finish(ctx context.Context, reply string) error {
	o := t.o
	if err := o.history.Add(ctx, o.sessionID, memory.RoleAssistant, reply); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	// The reply is persisted, so the bookkeeping below runs even when the
	// consumer stops at the final event or at idle. It emits nothing.
	if t.emit(SpeechEvent{Text: reply, IsFinal: true}) {
		t.state(StateIdle)
	}

	if o.summary != nil {
		sctx, span := otel.Tracer("backend-go-assistant").Start(ctx, "Summarization")
		written := o.summary.Run(sctx, o.sessionID)
		span.SetAttributes(attribute.Bool("written", written))
		span.End()
	}

	o.record(ctx, storage.EventTurnEnd, map[string]any{"reply_chars": len(reply)})
	o.publishStatus(ctx, "COMPLETED")
	o.publishResult(ctx, reply)
	logger.FromContext(ctx, o.log).Info("turn_completed", "reply_chars", len(reply))
	return nil
}

func (t *turn) rememberShortcut(ctx context.Context, content string) error {
	o := t.o
	reply := rememberPrompt
	if content != "" {
		reply = rememberAck
		if err := o.memory.Add(ctx, content, memory.DefaultCategory, memory.DefaultImportance); err != nil {
			logger.FromContext(ctx, o.log).Warn("memory_write_failed", "error", err)
		} else {
			o.record(ctx, storage.EventMemoryWrite, map[string]any{"category": memory.DefaultCategory, "shortcut": true})
		}
	}
	if !t.emit(SpeechEvent{Text: reply}) {
		return nil
	}
	return t.finish(ctx, reply)
}

func (o *Orchestrator) record(ctx context.Context, eventType string, data any) {
	if o.auditor == nil {
		return
	}
	if err := o.auditor.RecordStep(ctx, logger.TraceID(ctx), o.sessionID, eventType, data); err != nil {
		logger.FromContext(ctx, o.log).Warn("audit_record_failed", "event", eventType, "error", err)
	}
}

func (o *Orchestrator) publishStatus(ctx context.Context, status string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishStatus(ctx, o.sessionID, status); err != nil {
		logger.FromContext(ctx, o.log).Warn("publish_status_failed", "error", err)
	}
}

func (o *Orchestrator) publishResult(ctx context.Context, result string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishResult(ctx, o.sessionID, result); err != nil {
		logger.FromContext(ctx, o.log).Warn("publish_result_failed", "error", err)
	}
}
