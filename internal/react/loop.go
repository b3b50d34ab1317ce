package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/tools"
	"netagent/pkg/logger"
	"netagent/pkg/models"
	"netagent/pkg/prompts"
	"netagent/pkg/template"
)

// EventSink receives progress events in execution order, each emitted only
// after its loop transition has committed. A nil sink disables streaming.
type EventSink func(models.Event)

// Run accumulates everything one request's loop execution produces. The
// error list never aborts the run; every failure path resolves to a finish
// so a run always terminates.
type Run struct {
	History []models.ExecutionStep
	Errors  []string
	State   models.LoopState
}

// Controller drives the Think, Act, Observe cycle across a routed agent
// plan. One controller serves one request; it exclusively owns the run's
// loop state and history while executing.
type Controller struct {
	cfg   *config.Config
	model llm.Client
	tools tools.Invoker
}

func NewController(cfg *config.Config, model llm.Client, invoker tools.Invoker) *Controller {
	return &Controller{cfg: cfg, model: model, tools: invoker}
}

// Execute walks the plan in order under one shared iteration budget. A
// pre-decided first action (from routing) is consumed on the first Think
// without a model call. Execute always returns a terminated run.
func (c *Controller) Execute(ctx context.Context, plan []models.AgentPlanEntry, firstAction *models.Decision, maxIterations int, sink EventSink) *Run {
	run := &Run{
		State: models.LoopState{CurrentStep: 1, MaxIterations: maxIterations},
	}
	if firstAction != nil {
		run.State.NextAction = firstAction
		run.State.SkipFirstThink = true
	}

	for run.State.AgentIndex < len(plan) && !run.State.Finished {
		entry := &plan[run.State.AgentIndex]
		agent, ok := c.cfg.AgentByFullName(entry.Name)
		if !ok {
			run.Errors = append(run.Errors, fmt.Sprintf("unknown agent %q in plan", entry.Name))
			entry.Status = models.AgentFailed
			c.advance(plan, run)
			continue
		}

		entry.Status = models.AgentRunning
		log.Info().Str(logger.AgentNameField, entry.Name).Str("task", entry.Task).
			Int("agent_index", run.State.AgentIndex).Msg("agent turn started")
		c.runAgent(ctx, entry, agent, plan, run, sink)
	}

	run.State.Finished = true
	return run
}

// runAgent executes one plan entry until the agent finishes or the shared
// budget runs out.
func (c *Controller) runAgent(ctx context.Context, entry *models.AgentPlanEntry, agent config.AgentConfig, plan []models.AgentPlanEntry, run *Run, sink EventSink) {
	for {
		if run.State.CurrentStep > run.State.MaxIterations {
			log.Warn().Int(logger.StepField, run.State.CurrentStep).Int("max_iterations", run.State.MaxIterations).
				Str(logger.AgentNameField, entry.Name).Msg("iteration budget exhausted, forcing finish")
			entry.Status = models.AgentCompleted
			run.State.Finished = true
			return
		}

		decision := c.think(ctx, entry, agent, run)
		emit(sink, models.Event{
			Kind:    models.EventThought,
			Step:    run.State.CurrentStep,
			Agent:   entry.Name,
			Thought: decision.Thought,
		})

		var observation string
		if decision.Action.Type == models.ActionTool {
			emit(sink, models.Event{
				Kind:   models.EventToolCall,
				Step:   run.State.CurrentStep,
				Agent:  entry.Name,
				Tool:   decision.Action.Tool,
				Params: decision.Action.Params,
			})
			result, err := c.tools.Invoke(ctx, decision.Action.Tool, decision.Action.Params)
			if err != nil {
				observation = "Error: " + err.Error()
				log.Warn().Err(err).Str(logger.ToolField, decision.Action.Tool).Msg("tool invocation failed")
			} else {
				observation = result
			}
		}

		step := models.ExecutionStep{
			Step:        run.State.CurrentStep,
			Thought:     decision.Thought,
			Action:      decision.Action,
			Observation: observation,
			Timestamp:   time.Now(),
		}
		run.History = append(run.History, step)
		run.State.LastObservation = observation
		run.State.CurrentStep++

		if decision.Action.Type == models.ActionTool {
			emit(sink, models.Event{
				Kind:        models.EventObservation,
				Step:        step.Step,
				Agent:       entry.Name,
				Observation: observation,
			})
			continue
		}

		// explicit finish from the model (or a coerced one)
		entry.Status = models.AgentCompleted
		c.advance(plan, run)
		return
	}
}

// advance moves to the next plan entry; the whole request finishes when no
// entries remain. Finished never reverts once set.
func (c *Controller) advance(plan []models.AgentPlanEntry, run *Run) {
	run.State.AgentIndex++
	if run.State.AgentIndex >= len(plan) {
		run.State.Finished = true
	}
}

// think produces the next decision. Order: drain the batch queue, consume a
// pre-decided first action, then ask the model. Any failure on the model
// path resolves to a finish decision carrying the error as its thought, so
// the caller never sees an error.
func (c *Controller) think(ctx context.Context, entry *models.AgentPlanEntry, agent config.AgentConfig, run *Run) models.Decision {
	if len(run.State.ToolQueue) > 0 {
		next := run.State.ToolQueue[0]
		run.State.ToolQueue = run.State.ToolQueue[1:]
		log.Debug().Str(logger.ToolField, next.Tool).Int("queued", len(run.State.ToolQueue)).Msg("executing pre-planned tool from queue")
		return models.Decision{
			Thought: fmt.Sprintf("Executing pre-planned tool call %s.", next.Tool),
			Action:  models.Action{Type: models.ActionTool, Tool: next.Tool, Params: next.Params},
		}
	}

	if run.State.SkipFirstThink && run.State.NextAction != nil {
		d := *run.State.NextAction
		run.State.SkipFirstThink = false
		run.State.NextAction = nil
		log.Debug().Str(logger.ToolField, d.Action.Tool).Msg("consuming pre-decided first action")
		return d
	}

	available, err := c.tools.List(ctx, agent.ToolPrefix)
	if err != nil {
		return c.failThink(run, fmt.Sprintf("listing tools for %s failed: %v", entry.Name, err))
	}

	prompt, err := c.buildThinkPrompt(entry.Task, agent, available, run)
	if err != nil {
		return c.failThink(run, fmt.Sprintf("building prompt failed: %v", err))
	}

	completion, err := c.model.Complete(ctx, prompt)
	if err != nil {
		return c.failThink(run, fmt.Sprintf("model call failed: %v", err))
	}

	decision := Parse(completion.Text, agent.ToolPrefix)

	names := make([]string, 0, len(available))
	for _, t := range available {
		names = append(names, t.Name)
	}
	if ok, errs := Validate(decision.Action, names); !ok {
		// hallucinated or malformed action: terminate this agent's turn
		// with the rejection visible as the closing thought
		reason := strings.Join(errs, "; ")
		log.Warn().Str(logger.AgentNameField, entry.Name).Str("reason", reason).Msg("action rejected, coercing to finish")
		return models.Decision{
			Thought: reason,
			Action:  models.Action{Type: models.ActionFinish},
		}
	}

	if len(decision.Batch) > 1 && c.cfg.React.Batch.Enabled {
		rest := decision.Batch[1:]
		if max := c.cfg.React.Batch.Size() - 1; len(rest) > max {
			rest = rest[:max]
		}
		run.State.ToolQueue = append(run.State.ToolQueue, rest...)
		log.Info().Int("queued", len(rest)).Msg("queued batch-planned tools")
	}

	return decision
}

// failThink records a think-boundary failure and turns it into a finish.
func (c *Controller) failThink(run *Run, msg string) models.Decision {
	log.Error().Str("reason", msg).Msg("think failed, forcing finish")
	run.Errors = append(run.Errors, msg)
	return models.Decision{
		Thought: msg,
		Action:  models.Action{Type: models.ActionFinish},
	}
}

func (c *Controller) buildThinkPrompt(task string, agent config.AgentConfig, available []tools.Tool, run *Run) (string, error) {
	var toolLines strings.Builder
	for _, t := range available {
		toolLines.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
	}

	history := CompressHistory(c.cfg.React.History, run.History)
	if history != "" {
		history = "\nExecution history:\n" + history + "\n"
	}

	lastObs := ""
	if run.State.LastObservation != "" {
		lastObs = "\nLast observation:\n" + TruncateRunes(run.State.LastObservation, maxObservationChars) + "\n"
	}

	fields := map[string]any{
		"SystemPrompt":    agent.SystemPrompt,
		"Task":            task,
		"Tools":           toolLines.String(),
		"History":         history,
		"LastObservation": lastObs,
	}

	text := prompts.ThinkTemplate
	if c.cfg.React.Batch.Enabled {
		text = prompts.ThinkBatchTemplate
		fields["MaxBatchSize"] = c.cfg.React.Batch.Size()
	}
	return template.Parse(text, fields)
}

func emit(sink EventSink, e models.Event) {
	if sink != nil {
		sink(e)
	}
}
