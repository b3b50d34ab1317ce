package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/react"
	"netagent/pkg/models"
	"netagent/pkg/prompts"
	"netagent/pkg/template"
)

var errorMarkers = []string{"Error", "error", "failed", "exception", "失败", "错误"}

// Assembler renders a finished run into the final answer text. Simple runs
// are rendered straight from the tool output; longer ones get one model
// analysis pass. Accumulated request errors are always appended as a
// visible list, and partial results are never discarded.
type Assembler struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble returns the answer plus any errors the assembly itself produced.
// The answer is never empty.
func (a *Assembler) Assemble(ctx context.Context, model llm.Client, question string, plan []models.AgentPlanEntry, run *react.Run) (string, []string) {
	toolSteps := filterToolSteps(run.History)

	var answer string
	var errs []string

	switch {
	case len(toolSteps) == 0:
		answer = answerWithoutTools(run)
	case a.skipAnalysis(plan, toolSteps, run.Errors):
		answer = renderDirect(toolSteps)
	default:
		text, err := a.analyze(ctx, model, question, plan, toolSteps)
		if err != nil {
			log.Error().Err(err).Msg("answer analysis failed, falling back to direct rendering")
			errs = append(errs, fmt.Sprintf("answer analysis failed: %v", err))
			answer = renderDirect(toolSteps)
		} else {
			answer = text
		}
	}

	if answer == "" {
		answer = "The task could not be completed; no usable results were produced."
	}

	all := append(append([]string{}, run.Errors...), errs...)
	if len(all) > 0 {
		var b strings.Builder
		b.WriteString(answer)
		b.WriteString("\n\n---\nErrors encountered:\n")
		for _, e := range all {
			b.WriteString("- " + e + "\n")
		}
		answer = b.String()
	}
	return answer, errs
}

// skipAnalysis decides whether a run is simple enough to answer straight
// from tool output. Errors always force the analysis pass when configured.
func (a *Assembler) skipAnalysis(plan []models.AgentPlanEntry, toolSteps []models.ExecutionStep, runErrors []string) bool {
	sc := a.cfg.Answer.SkipAnalysis
	if !sc.Enabled {
		return false
	}

	if sc.AlwaysAnalyzeOnError {
		if len(runErrors) > 0 || anyFailed(toolSteps) {
			log.Info().Msg("errors present, running answer analysis")
			return false
		}
	}

	threshold := sc.StepThreshold
	if len(plan) > 1 {
		threshold = sc.MultiAgentStepThreshold
	}
	skip := len(toolSteps) <= threshold
	log.Info().Int("tool_calls", len(toolSteps)).Int("threshold", threshold).Bool("skip", skip).
		Msg("skip-analysis decision")
	return skip
}

func (a *Assembler) analyze(ctx context.Context, model llm.Client, question string, plan []models.AgentPlanEntry, toolSteps []models.ExecutionStep) (string, error) {
	prompt, err := template.Parse(prompts.AnalysisTemplate, map[string]any{
		"Expert":   expertFor(plan),
		"Question": question,
		"Results":  renderResults(toolSteps),
	})
	if err != nil {
		return "", fmt.Errorf("analysis prompt: %w", err)
	}

	completion, err := model.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("analysis call: %w", err)
	}
	return strings.TrimSpace(completion.Text), nil
}

// expertFor picks the analysis persona from the first planned agent.
func expertFor(plan []models.AgentPlanEntry) string {
	if len(plan) > 0 {
		name := strings.ToLower(plan[0].Name)
		switch {
		case strings.Contains(name, "network"):
			return "network diagnostics expert"
		case strings.Contains(name, "database"), strings.Contains(name, "mysql"):
			return "database analysis expert"
		}
	}
	return "data analysis expert"
}

// renderResults lays out each tool call with its status for the analysis
// prompt.
func renderResults(toolSteps []models.ExecutionStep) string {
	var b strings.Builder
	for i, s := range toolSteps {
		status := "ok"
		if stepFailed(s) {
			status = "FAILED"
		}
		b.WriteString(fmt.Sprintf("\n[Tool %d] %s - %s\n", i+1, s.Action.Tool, status))
		b.WriteString(smartTruncate(s.Observation, s.Action.Tool) + "\n")
	}
	return b.String()
}

// renderDirect produces the answer straight from tool output, one section
// per call, headed by the structured summary for that tool family.
func renderDirect(toolSteps []models.ExecutionStep) string {
	var b strings.Builder
	for _, s := range toolSteps {
		b.WriteString(fmt.Sprintf("### %s (%s)\n\n", s.Action.Tool, summarize(s.Action.Tool, s.Observation)))
		b.WriteString("```\n")
		b.WriteString(strings.TrimSpace(smartTruncate(s.Observation, s.Action.Tool)))
		b.WriteString("\n```\n\n")
	}
	return strings.TrimSpace(b.String())
}

// answerWithoutTools covers runs where the model finished without calling
// anything: its closing thought is the best answer available.
func answerWithoutTools(run *react.Run) string {
	for i := len(run.History) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(run.History[i].Thought); t != "" {
			return t
		}
	}
	return ""
}

func filterToolSteps(history []models.ExecutionStep) []models.ExecutionStep {
	var out []models.ExecutionStep
	for _, s := range history {
		if s.Action.Type == models.ActionTool {
			out = append(out, s)
		}
	}
	return out
}

func anyFailed(toolSteps []models.ExecutionStep) bool {
	for _, s := range toolSteps {
		if stepFailed(s) {
			return true
		}
	}
	return false
}

func stepFailed(s models.ExecutionStep) bool {
	for _, marker := range errorMarkers {
		if strings.Contains(s.Observation, marker) {
			return true
		}
	}
	return false
}
