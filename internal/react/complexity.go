package react

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"netagent/internal/config"
	"netagent/pkg/models"
)

// Keyword tables for complexity scoring. Bilingual because operators phrase
// requests in either language; first match in the high/medium/low lists
// counts once, multi-step connectives count per occurrence in the text.
var (
	highComplexityKeywords = []string{
		"分析", "诊断", "排查", "对比", "比较", "综合",
		"多个", "所有", "全部", "详细", "完整",
		"analyze", "diagnose", "compare", "comprehensive",
	}
	mediumComplexityKeywords = []string{
		"查询", "检查", "测试", "获取",
		"query", "check", "test", "get",
	}
	lowComplexityKeywords = []string{
		"ping", "nslookup", "列出", "显示",
		"list", "show", "简单",
	}
	multiStepKeywords = []string{
		"然后", "接着", "之后", "再", "并且", "同时",
		"and then", "after that",
	}
)

// AssessComplexity scores a request's text and plan size to pick an
// iteration budget. Deterministic: the same text and plan always produce the
// same level and ceiling. With adaptive depth disabled every request gets
// medium with the default ceiling.
func AssessComplexity(cfg config.AdaptiveDepthConfig, text string, planLen int) (models.Complexity, int) {
	if !cfg.Enabled {
		return models.ComplexityMedium, cfg.DefaultCeiling()
	}

	score := 0

	switch n := utf8.RuneCountInString(text); {
	case n < 20:
	case n < 50:
		score++
	default:
		score += 2
	}

	if planLen > 1 {
		score += planLen
	}

	lower := strings.ToLower(text)
	for _, kw := range highComplexityKeywords {
		if strings.Contains(lower, kw) {
			score += 2
			break
		}
	}
	for _, kw := range mediumComplexityKeywords {
		if strings.Contains(lower, kw) {
			score++
			break
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(lower, kw) {
			score--
			break
		}
	}
	for _, kw := range multiStepKeywords {
		score += strings.Count(lower, kw)
	}

	var level models.Complexity
	switch {
	case score <= 1:
		level = models.ComplexityLow
	case score <= 4:
		level = models.ComplexityMedium
	default:
		level = models.ComplexityHigh
	}
	max := cfg.MaxIterationsFor(string(level))

	log.Info().Int("score", score).Str("level", string(level)).Int("max_iterations", max).Msg("assessed task complexity")
	return level, max
}
