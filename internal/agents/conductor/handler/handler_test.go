package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/router"
	"netagent/internal/tools"
	"netagent/pkg/models"
)

type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) Complete(context.Context, string) (llm.Completion, error) {
	m.calls++
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return llm.Completion{Text: m.responses[i], InputTokens: 5, OutputTokens: 5}, nil
}

func pipelineConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Model: "gpt-4o-mini"},
		Agents: map[string]config.AgentConfig{
			"network": {
				FullName:     "network_agent",
				ShortNames:   []string{"network"},
				Description:  "network diagnostics",
				ToolPrefix:   "network",
				SystemPrompt: "You diagnose networks.",
			},
		},
		Router: config.RouterConfig{
			DefaultAgent:        "network_agent",
			ConfidenceThreshold: 0.5,
			ManualEnabled:       true,
			RulesEnabled:        true,
			KeywordRules: []config.KeywordRule{
				{Keywords: []string{"ping", "latency"}, TargetAgent: "network_agent", Priority: 2},
			},
			Cache: config.CacheConfig{Enabled: true, TTL: time.Hour},
		},
		React: config.ReactConfig{
			AdaptiveDepth: config.AdaptiveDepthConfig{Enabled: true, LowMax: 3, MediumMax: 6, HighMax: 10, DefaultMax: 10},
			History:       config.HistoryConfig{Enabled: true, WindowSize: 3, SummaryMaxLength: 100},
			Batch:         config.BatchConfig{MaxSize: 5},
			MaxInputLen:   100,
		},
		Answer: config.AnswerConfig{
			SkipAnalysis: config.SkipAnalysisConfig{Enabled: true, StepThreshold: 2, MultiAgentStepThreshold: 3, AlwaysAnalyzeOnError: true},
		},
		Tokens: config.TokenConfig{Enabled: true},
	}
}

func newHandler(model llm.Client) *Handler {
	cfg := pipelineConfig()
	registry := &tools.Static{
		Tools: []tools.Tool{{Name: "network.ping", Description: "ping a host"}},
		Handler: func(context.Context, string, map[string]any) (string, error) {
			return "reply from 1.2.3.4: time=10 ms", nil
		},
	}
	ledger := llm.NewLedger(cfg.Tokens)
	return New(cfg, model, ledger, router.New(cfg, registry), registry)
}

func TestHandleEndToEnd(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: checking reachability\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
		"THOUGHT: it answers fast\nACTION: FINISH",
	}}
	h := newHandler(model)

	res := h.Handle(context.Background(), "req-1", "ping x.com", nil)

	require.NotNil(t, res)
	assert.NotEmpty(t, res.Answer)
	assert.Equal(t, router.MethodRules, res.Metadata.RoutingMethod)
	assert.Equal(t, models.ComplexityLow, res.Metadata.TaskComplexity)
	require.Len(t, res.History, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 10, res.Metadata.Usage.InputTokens)
}

func TestHandleStreamsEventsInOrder(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: checking\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
		"THOUGHT: done\nACTION: FINISH",
	}}
	h := newHandler(model)

	var kinds []models.EventKind
	res := h.Handle(context.Background(), "req-1", "ping x.com", func(e models.Event) {
		kinds = append(kinds, e.Kind)
	})

	require.NotEmpty(t, kinds)
	assert.Equal(t, []models.EventKind{
		models.EventThought,
		models.EventToolCall,
		models.EventObservation,
		models.EventThought,
		models.EventFinish,
	}, kinds)
	assert.NotEmpty(t, res.Answer)
}

func TestHandleFollowUpSentinel(t *testing.T) {
	h := newHandler(&scriptedModel{responses: []string{"unused"}})

	res := h.Handle(context.Background(), "req-1", "Suggest 3 follow-up questions", nil)

	assert.Equal(t, router.FollowUpAnswer, res.Answer)
	assert.Empty(t, res.History)
}

func TestHandleEmptyInput(t *testing.T) {
	h := newHandler(&scriptedModel{responses: []string{"unused"}})
	res := h.Handle(context.Background(), "req-1", "  \x00\x01  ", nil)
	assert.NotEmpty(t, res.Answer)
	assert.Empty(t, res.History)
}

func TestReloadAppliesNewAnswerSettings(t *testing.T) {
	responses := []string{
		"THOUGHT: checking\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
		"THOUGHT: done\nACTION: FINISH",
		"The host answers in 10ms.",
	}

	model := &scriptedModel{responses: responses}
	h := newHandler(model)
	h.Handle(context.Background(), "req-1", "ping x.com", nil)
	assert.Equal(t, 2, model.calls, "skip-analysis holds back the synthesis call")

	next := pipelineConfig()
	next.Answer.SkipAnalysis.Enabled = false
	next.Router.Cache.Enabled = false
	model2 := &scriptedModel{responses: responses}
	h2 := newHandler(model2)
	h2.Reload(next)
	res := h2.Handle(context.Background(), "req-2", "ping x.com", nil)

	assert.Equal(t, 3, model2.calls, "reloaded config runs the synthesis call")
	assert.Equal(t, "The host answers in 10ms.", res.Answer)
}

func TestHandleTruncatesOversizedInput(t *testing.T) {
	model := &scriptedModel{responses: []string{"THOUGHT: done\nACTION: FINISH"}}
	h := newHandler(model)

	long := "latency " + strings.Repeat("x", 500)
	res := h.Handle(context.Background(), "req-1", long, nil)

	assert.NotEmpty(t, res.Answer)
}
