package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend-go-assistant/config"
)

func TestHybrid_RuleFirstConfidentSkipsModel(t *testing.T) {
	client := &scriptedClient{chunks: []string{`{"actions":[{"type":"respond"}]}`}}
	h := NewHybridPlanner(NewRulePlanner(nil), NewModelPlanner(client, time.Second, nil), RuleFirst, nil)

	plan := h.Decide(context.Background(), "What is the capital of France?", nil)
	assert.Equal(t, ActionWebSearch, plan.Actions[0].Type)
	assert.Equal(t, 0, client.calls)
}

func TestHybrid_RuleFirstDefersToModelOnce(t *testing.T) {
	client := &scriptedClient{chunks: []string{`{"actions":[{"type":"web_search","query":"weather"},{"type":"respond"}]}`}}
	h := NewHybridPlanner(NewRulePlanner(nil), NewModelPlanner(client, time.Second, nil), RuleFirst, nil)

	plan := h.Decide(context.Background(), "should I bring an umbrella", nil)
	assert.Equal(t, NewPlan(WebSearch("weather"), Respond()), plan)
	assert.Equal(t, 1, client.calls)
}

func TestHybrid_ModelFirstFallsBackOnInfraError(t *testing.T) {
	client := &scriptedClient{openErr: errors.New("dial tcp: refused")}
	h := NewHybridPlanner(NewRulePlanner(nil), NewModelPlanner(client, time.Second, nil), ModelFirst, nil)

	plan := h.Decide(context.Background(), "latest news", nil)
	assert.Equal(t, NewPlan(WebSearch("latest news"), Respond()), plan)
	assert.Equal(t, 1, client.calls)
}

func TestHybrid_ModelFirstKeepsSemanticFallback(t *testing.T) {
	client := &scriptedClient{chunks: []string{"not json"}}
	h := NewHybridPlanner(NewRulePlanner(nil), NewModelPlanner(client, time.Second, nil), ModelFirst, nil)

	assert.Equal(t, DefaultPlan(), h.Decide(context.Background(), "latest news", nil))
}

func TestNew_SelectsVariant(t *testing.T) {
	client := &scriptedClient{}

	p, err := New(config.PlannerConfig{Mode: "rule", LLMEnabled: true}, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &RulePlanner{}, p)

	p, err = New(config.PlannerConfig{Mode: "hybrid", LLMEnabled: false}, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &RulePlanner{}, p)

	p, err = New(config.PlannerConfig{Mode: "llm", LLMEnabled: true, TimeoutMS: 800}, client, nil)
	require.NoError(t, err)
	require.IsType(t, &ModelPlanner{}, p)
	assert.Equal(t, 800*time.Millisecond, p.(*ModelPlanner).timeout)

	p, err = New(config.PlannerConfig{Mode: "hybrid", LLMEnabled: true, HybridPolicy: "model_first"}, client, nil)
	require.NoError(t, err)
	require.IsType(t, &HybridPlanner{}, p)
	assert.Equal(t, ModelFirst, p.(*HybridPlanner).policy)

	_, err = New(config.PlannerConfig{Mode: "oracle", LLMEnabled: true}, client, nil)
	assert.Error(t, err)

	_, err = New(config.PlannerConfig{Mode: "hybrid", LLMEnabled: true, HybridPolicy: "coin_flip"}, client, nil)
	assert.Error(t, err)
}
