package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/react"
	"netagent/pkg/models"
)

type scriptedModel struct {
	response string
	err      error
	calls    int
}

func (m *scriptedModel) Complete(context.Context, string) (llm.Completion, error) {
	m.calls++
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	return llm.Completion{Text: m.response}, nil
}

func answerConfig() *config.Config {
	return &config.Config{
		Answer: config.AnswerConfig{
			SkipAnalysis: config.SkipAnalysisConfig{
				Enabled:                 true,
				StepThreshold:           2,
				MultiAgentStepThreshold: 3,
				AlwaysAnalyzeOnError:    true,
			},
		},
	}
}

func toolStep(step int, tool, observation string) models.ExecutionStep {
	return models.ExecutionStep{
		Step:        step,
		Thought:     "working",
		Action:      models.Action{Type: models.ActionTool, Tool: tool, Params: map[string]any{}},
		Observation: observation,
	}
}

func singlePlan() []models.AgentPlanEntry {
	return []models.AgentPlanEntry{{Name: "network_agent", Task: "t", Status: models.AgentCompleted}}
}

func TestAssembleSkipsAnalysisForSimpleRun(t *testing.T) {
	model := &scriptedModel{response: "should not be called"}
	run := &react.Run{History: []models.ExecutionStep{
		toolStep(1, "network.ping", "reply from 1.2.3.4: time=10 ms"),
	}}

	text, errs := New(answerConfig()).Assemble(context.Background(), model, "ping it", singlePlan(), run)

	assert.Zero(t, model.calls)
	assert.Empty(t, errs)
	assert.Contains(t, text, "network.ping")
	assert.Contains(t, text, "reply from 1.2.3.4")
}

func TestAssembleAnalyzesComplexRun(t *testing.T) {
	model := &scriptedModel{response: "The host resolves to 1.2.3.4 and answers in 10ms."}
	run := &react.Run{History: []models.ExecutionStep{
		toolStep(1, "network.nslookup", "Address: 1.2.3.4"),
		toolStep(2, "network.ping", "time=10 ms"),
		toolStep(3, "network.traceroute", "3 hops"),
	}}

	text, errs := New(answerConfig()).Assemble(context.Background(), model, "diagnose x.com", singlePlan(), run)

	assert.Equal(t, 1, model.calls)
	assert.Empty(t, errs)
	assert.Equal(t, "The host resolves to 1.2.3.4 and answers in 10ms.", text)
}

func TestAssembleErrorsForceAnalysis(t *testing.T) {
	model := &scriptedModel{response: "The ping failed: the host is unreachable."}
	run := &react.Run{History: []models.ExecutionStep{
		toolStep(1, "network.ping", "Error: host unreachable"),
	}}

	_, _ = New(answerConfig()).Assemble(context.Background(), model, "ping it", singlePlan(), run)

	assert.Equal(t, 1, model.calls, "a failed observation always gets the analysis pass")
}

func TestAssembleAnalysisFailureFallsBack(t *testing.T) {
	model := &scriptedModel{err: errors.New("rate limited")}
	run := &react.Run{History: []models.ExecutionStep{
		toolStep(1, "network.nslookup", "Address: 1.2.3.4"),
		toolStep(2, "network.ping", "time=10 ms"),
		toolStep(3, "network.traceroute", "3 hops"),
	}}

	text, errs := New(answerConfig()).Assemble(context.Background(), model, "diagnose", singlePlan(), run)

	require.NotEmpty(t, errs)
	assert.Contains(t, text, "network.nslookup", "partial results preserved")
	assert.Contains(t, text, "Errors encountered:")
}

func TestAssembleAppendsRunErrors(t *testing.T) {
	run := &react.Run{
		History: []models.ExecutionStep{toolStep(1, "network.ping", "time=10 ms")},
		Errors:  []string{"model call failed: timeout"},
	}
	model := &scriptedModel{response: "Despite the error, the host responded in 10ms."}

	text, _ := New(answerConfig()).Assemble(context.Background(), model, "ping it", singlePlan(), run)

	assert.Contains(t, text, "Errors encountered:")
	assert.Contains(t, text, "model call failed: timeout")
}

func TestAssembleWithoutToolsUsesClosingThought(t *testing.T) {
	run := &react.Run{History: []models.ExecutionStep{{
		Step:    1,
		Thought: "This needs no tools: the answer is 42.",
		Action:  models.Action{Type: models.ActionFinish},
	}}}

	text, _ := New(answerConfig()).Assemble(context.Background(), &scriptedModel{}, "q", singlePlan(), run)
	assert.Equal(t, "This needs no tools: the answer is 42.", text)
}

func TestAssembleNeverEmpty(t *testing.T) {
	text, _ := New(answerConfig()).Assemble(context.Background(), &scriptedModel{}, "q", nil, &react.Run{})
	assert.NotEmpty(t, text)
}

func TestAssembleMultiAgentThreshold(t *testing.T) {
	model := &scriptedModel{response: "analysis"}
	plan := []models.AgentPlanEntry{
		{Name: "network_agent", Status: models.AgentCompleted},
		{Name: "database_agent", Status: models.AgentCompleted},
	}
	run := &react.Run{History: []models.ExecutionStep{
		toolStep(1, "network.ping", "time=10 ms"),
		toolStep(2, "network.nslookup", "Address: 1.2.3.4"),
		toolStep(3, "mysql.show_tables", "5 rows"),
	}}

	_, _ = New(answerConfig()).Assemble(context.Background(), model, "q", plan, run)
	assert.Zero(t, model.calls, "three tool calls across two agents is still below the multi-agent threshold")
}
