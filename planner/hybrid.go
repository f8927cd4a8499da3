package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"backend-go-assistant/config"
	"backend-go-assistant/internal/logger"
	"backend-go-assistant/llm"
	"backend-go-assistant/perception"
)

type HybridPolicy string

const (
	// RuleFirst uses the rule plan when it is anything but [respond].
	RuleFirst HybridPolicy = "rule_first"
	// ModelFirst uses the model plan unless the model call itself failed.
	ModelFirst HybridPolicy = "model_first"
)

// HybridPlanner calls the model planner at most once per turn under either policy.
type HybridPlanner struct {
	rule   *RulePlanner
	model  *ModelPlanner
	policy HybridPolicy
	log    *slog.Logger
}

func NewHybridPlanner(rule *RulePlanner, model *ModelPlanner, policy HybridPolicy, log *slog.Logger) *HybridPlanner {
	if policy == "" {
		policy = RuleFirst
	}
	if log == nil {
		log = logger.Discard()
	}
	return &HybridPlanner{rule: rule, model: model, policy: policy, log: log}
}

func (h *HybridPlanner) Decide(ctx context.Context, text string, snapshot perception.Snapshot) Plan {
	lg := logger.FromContext(ctx, h.log)

	if h.policy == ModelFirst {
		plan, err := h.model.TryDecide(ctx, text, snapshot)
		if err != nil {
			lg.Warn("hybrid_planner_model_failed", "error", err)
			recordFallback(ctx, "model_error")
			return h.rule.Decide(ctx, text, snapshot)
		}
		return plan
	}

	if plan := h.rule.Decide(ctx, text, snapshot); !plan.IsDefault() {
		lg.Info("hybrid_planner_rule_confident", "actions", plan.Types())
		return plan
	}
	return h.model.Decide(ctx, text, snapshot)
}

// New selects a planner from configuration:
// rule (or llm_enabled=false) -> rule, llm -> model, hybrid -> hybrid.
func New(cfg config.PlannerConfig, client llm.Client, log *slog.Logger) (Planner, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "rule"
	}
	rule := NewRulePlanner(log)

	switch mode {
	case "rule", "llm", "hybrid":
	default:
		return nil, fmt.Errorf("unknown planner mode %q (supported: rule, llm, hybrid)", cfg.Mode)
	}
	if mode == "rule" || !cfg.LLMEnabled {
		return rule, nil
	}
	if client == nil {
		return nil, fmt.Errorf("planner mode %q requires an llm client", mode)
	}

	model := NewModelPlanner(client, msToDuration(cfg.TimeoutMS), log)
	if mode == "llm" {
		return model, nil
	}

	policy := HybridPolicy(strings.ToLower(strings.TrimSpace(cfg.HybridPolicy)))
	switch policy {
	case "", RuleFirst, ModelFirst:
	default:
		return nil, fmt.Errorf("unknown hybrid policy %q (supported: rule_first, model_first)", cfg.HybridPolicy)
	}
	return NewHybridPlanner(rule, model, policy, log), nil
}
