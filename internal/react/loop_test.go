package react

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/tools"
	"netagent/pkg/models"
)

// scriptedModel replays canned responses; the last one repeats forever.
type scriptedModel struct {
	responses []string
	calls     int
	err       error
}

func (m *scriptedModel) Complete(context.Context, string) (llm.Completion, error) {
	m.calls++
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return llm.Completion{Text: m.responses[i]}, nil
}

func loopConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"network": {
				FullName:     "network_agent",
				ToolPrefix:   "network",
				SystemPrompt: "You diagnose networks.",
			},
			"database": {
				FullName:     "database_agent",
				ToolPrefix:   "mysql",
				SystemPrompt: "You inspect databases.",
			},
		},
		React: config.ReactConfig{
			History: config.HistoryConfig{Enabled: true, WindowSize: 3, SummaryMaxLength: 100},
			Batch:   config.BatchConfig{Enabled: false, MaxSize: 5},
		},
	}
}

func networkRegistry(invoked *[]string) *tools.Static {
	return &tools.Static{
		Tools: []tools.Tool{
			{Name: "network.ping", Description: "ping a host"},
			{Name: "network.nslookup", Description: "resolve a domain"},
		},
		Handler: func(_ context.Context, name string, _ map[string]any) (string, error) {
			if invoked != nil {
				*invoked = append(*invoked, name)
			}
			return "reply from 1.2.3.4: time=10 ms", nil
		},
	}
}

func singlePlan() []models.AgentPlanEntry {
	return []models.AgentPlanEntry{{Name: "network_agent", Task: "ping x.com", Status: models.AgentPending}}
}

func TestExecuteBudgetExhaustion(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: keep going\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
	}}
	var invoked []string
	c := NewController(loopConfig(), model, networkRegistry(&invoked))

	run := c.Execute(context.Background(), singlePlan(), nil, 2, nil)

	assert.Len(t, invoked, 2, "exactly maxIterations tool invocations")
	assert.True(t, run.State.Finished)
	require.Len(t, run.History, 2)
	for i, s := range run.History {
		assert.Equal(t, i+1, s.Step, "steps strictly increasing")
	}
	assert.LessOrEqual(t, run.State.CurrentStep, 3)
}

func TestExecuteExplicitFinish(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: resolving\nACTION: TOOL\nTOOL: network.nslookup\nPARAMS: {\"domain\": \"x.com\"}",
		"THOUGHT: got the address, done\nACTION: FINISH",
	}}
	var invoked []string
	c := NewController(loopConfig(), model, networkRegistry(&invoked))

	plan := singlePlan()
	run := c.Execute(context.Background(), plan, nil, 10, nil)

	assert.Equal(t, []string{"network.nslookup"}, invoked)
	assert.True(t, run.State.Finished)
	require.Len(t, run.History, 2)
	assert.Equal(t, models.ActionFinish, run.History[1].Action.Type)
	assert.Equal(t, models.AgentCompleted, plan[0].Status)
	assert.Empty(t, run.Errors)
}

func TestExecuteHallucinationCoercedToFinish(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: let me fly\nACTION: TOOL\nTOOL: network.fly\nPARAMS: {}",
	}}
	var invoked []string
	c := NewController(loopConfig(), model, networkRegistry(&invoked))

	run := c.Execute(context.Background(), singlePlan(), nil, 10, nil)

	assert.Empty(t, invoked, "hallucinated tool is never invoked")
	require.Len(t, run.History, 1)
	assert.Equal(t, models.ActionFinish, run.History[0].Action.Type)
	assert.Contains(t, run.History[0].Thought, "network.fly")
}

func TestExecuteDrainsBatchQueueFIFO(t *testing.T) {
	cfg := loopConfig()
	cfg.React.Batch.Enabled = true
	model := &scriptedModel{responses: []string{
		"THOUGHT: plan both\nACTION: TOOL\n" +
			"TOOL_1: network.nslookup\nPARAMS_1: {\"domain\": \"a.com\"}\n" +
			"TOOL_2: network.ping\nPARAMS_2: {\"target\": \"a.com\"}",
		"THOUGHT: done\nACTION: FINISH",
	}}
	var invoked []string
	c := NewController(cfg, model, networkRegistry(&invoked))

	run := c.Execute(context.Background(), singlePlan(), nil, 10, nil)

	assert.Equal(t, []string{"network.nslookup", "network.ping"}, invoked)
	assert.Equal(t, 2, model.calls, "queued tool executed without a model call")
	assert.True(t, run.State.Finished)
}

func TestExecuteConsumesPreDecidedFirstAction(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: done\nACTION: FINISH",
	}}
	var invoked []string
	c := NewController(loopConfig(), model, networkRegistry(&invoked))

	first := &models.Decision{
		Thought: "ping first",
		Action:  models.Action{Type: models.ActionTool, Tool: "network.ping", Params: map[string]any{"target": "x.com"}},
	}
	run := c.Execute(context.Background(), singlePlan(), first, 10, nil)

	assert.Equal(t, []string{"network.ping"}, invoked)
	assert.Equal(t, 1, model.calls, "first think skipped")
	assert.True(t, run.State.Finished)
	assert.Equal(t, "ping first", run.History[0].Thought)
}

func TestExecuteMultiAgentPlanAdvances(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: network part done\nACTION: FINISH",
		"THOUGHT: database part done\nACTION: FINISH",
	}}
	c := NewController(loopConfig(), model, networkRegistry(nil))

	plan := []models.AgentPlanEntry{
		{Name: "network_agent", Task: "ping it", Status: models.AgentPending},
		{Name: "database_agent", Task: "list tables", Status: models.AgentPending},
	}
	run := c.Execute(context.Background(), plan, nil, 10, nil)

	assert.True(t, run.State.Finished)
	assert.Equal(t, models.AgentCompleted, plan[0].Status)
	assert.Equal(t, models.AgentCompleted, plan[1].Status)
	require.Len(t, run.History, 2)
	assert.Equal(t, []int{1, 2}, []int{run.History[0].Step, run.History[1].Step})
}

func TestExecuteModelFailureTerminates(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection reset")}
	c := NewController(loopConfig(), model, networkRegistry(nil))

	run := c.Execute(context.Background(), singlePlan(), nil, 10, nil)

	assert.True(t, run.State.Finished)
	require.NotEmpty(t, run.Errors)
	assert.Contains(t, run.Errors[0], "connection reset")
	require.Len(t, run.History, 1)
	assert.Equal(t, models.ActionFinish, run.History[0].Action.Type)
}

func TestExecuteToolErrorBecomesObservation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: try it\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
		"THOUGHT: tool failed, stopping\nACTION: FINISH",
	}}
	registry := &tools.Static{
		Tools: []tools.Tool{{Name: "network.ping"}},
		Handler: func(context.Context, string, map[string]any) (string, error) {
			return "", errors.New("host unreachable")
		},
	}
	c := NewController(loopConfig(), model, registry)

	run := c.Execute(context.Background(), singlePlan(), nil, 10, nil)

	assert.True(t, run.State.Finished)
	assert.Empty(t, run.Errors, "tool failure is an observation, not a request error")
	require.Len(t, run.History, 2)
	assert.Contains(t, run.History[0].Observation, "host unreachable")
}

func TestExecuteEventsFollowExecutionOrder(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"THOUGHT: one call\nACTION: TOOL\nTOOL: network.ping\nPARAMS: {\"target\": \"x.com\"}",
		"THOUGHT: done\nACTION: FINISH",
	}}
	c := NewController(loopConfig(), model, networkRegistry(nil))

	var kinds []models.EventKind
	run := c.Execute(context.Background(), singlePlan(), nil, 10, func(e models.Event) {
		kinds = append(kinds, e.Kind)
	})

	assert.True(t, run.State.Finished)
	assert.Equal(t, []models.EventKind{
		models.EventThought,
		models.EventToolCall,
		models.EventObservation,
		models.EventThought,
	}, kinds)
}

func TestExecuteUnknownAgentRecordsError(t *testing.T) {
	model := &scriptedModel{responses: []string{"THOUGHT: done\nACTION: FINISH"}}
	c := NewController(loopConfig(), model, networkRegistry(nil))

	plan := []models.AgentPlanEntry{{Name: "ghost_agent", Task: "boo", Status: models.AgentPending}}
	run := c.Execute(context.Background(), plan, nil, 10, nil)

	assert.True(t, run.State.Finished)
	require.NotEmpty(t, run.Errors)
	assert.Contains(t, run.Errors[0], "ghost_agent")
	assert.Equal(t, models.AgentFailed, plan[0].Status)
}
