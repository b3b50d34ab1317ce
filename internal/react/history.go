package react

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"netagent/internal/config"
	"netagent/pkg/models"
)

// History rendering keeps prompt growth bounded: the last windowSize steps
// go in verbatim, everything older collapses into one arrow-joined summary
// line. A ten-step run with window 3 renders as one summary line over steps
// 1-7 plus three detailed steps.

const maxObservationChars = 800

var (
	ipRe      = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	latencyRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*ms`)
	countRe   = regexp.MustCompile(`(\d+)\s*(?:rows?|records?|条|记录|结果)`)
)

var failureMarkers = []string{"error", "failed", "失败", "错误"}

// CompressHistory renders the execution history for prompt inclusion.
func CompressHistory(cfg config.HistoryConfig, history []models.ExecutionStep) string {
	if len(history) == 0 {
		return ""
	}

	if !cfg.Enabled || len(history) <= cfg.Window() {
		return formatDetailed(history)
	}

	window := cfg.Window()
	older := history[:len(history)-window]
	recent := history[len(history)-window:]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[Summary] steps 1-%d:\n", len(older)))
	summaries := make([]string, 0, len(older))
	for _, s := range older {
		summaries = append(summaries, StepSummary(s, cfg.SummaryLimit()))
	}
	b.WriteString("  " + strings.Join(summaries, " → ") + "\n")
	b.WriteString(formatDetailed(recent))

	log.Debug().Int("total", len(history)).Int("compressed", len(older)).Int("detailed", len(recent)).
		Msg("compressed execution history")
	return b.String()
}

func formatDetailed(steps []models.ExecutionStep) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(fmt.Sprintf("\nStep %d:\n", s.Step))
		b.WriteString(fmt.Sprintf("  Thought: %s\n", s.Thought))
		switch s.Action.Type {
		case models.ActionTool:
			b.WriteString(fmt.Sprintf("  Action: %s %v\n", s.Action.Tool, s.Action.Params))
		default:
			b.WriteString(fmt.Sprintf("  Action: %s\n", s.Action.Type))
		}
		b.WriteString(fmt.Sprintf("  Observation: %s\n", TruncateRunes(s.Observation, maxObservationChars)))
	}
	return b.String()
}

// StepSummary compacts one step into "toolShortName(fact)" for the summary
// line, capped to limit characters.
func StepSummary(s models.ExecutionStep, limit int) string {
	tool := s.Action.Tool
	if tool == "" {
		tool = string(s.Action.Type)
	}
	if i := strings.LastIndex(tool, "."); i >= 0 {
		tool = tool[i+1:]
	}
	summary := fmt.Sprintf("%s(%s)", tool, ExtractResultFact(s.Observation))
	return TruncateRunes(summary, limit)
}

// ExtractResultFact pulls the most informative single fact out of an
// observation. Checked in order: an IP address, a millisecond latency
// figure, a row or record count, a failure marker; a nondescript success
// otherwise.
func ExtractResultFact(observation string) string {
	if strings.TrimSpace(observation) == "" {
		return "no result"
	}
	obs := TruncateRunes(observation, 500)

	if m := ipRe.FindString(obs); m != "" {
		return "IP=" + m
	}
	if m := latencyRe.FindStringSubmatch(obs); m != nil {
		return m[1] + "ms"
	}
	if m := countRe.FindStringSubmatch(obs); m != nil {
		return m[1] + " rows"
	}

	lower := strings.ToLower(obs)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return "failed"
		}
	}
	return "success"
}

// TruncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
