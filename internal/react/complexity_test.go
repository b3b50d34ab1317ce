package react

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"netagent/internal/config"
	"netagent/pkg/models"
)

func depthConfig() config.AdaptiveDepthConfig {
	return config.AdaptiveDepthConfig{
		Enabled:    true,
		LowMax:     3,
		MediumMax:  6,
		HighMax:    10,
		DefaultMax: 10,
	}
}

func TestAssessComplexityShortRequestIsLow(t *testing.T) {
	level, max := AssessComplexity(depthConfig(), "ping x.com", 1)
	assert.Equal(t, models.ComplexityLow, level)
	assert.Equal(t, 3, max)
}

func TestAssessComplexityHighKeyword(t *testing.T) {
	// a single comprehensive-analysis keyword already pushes past low
	level, max := AssessComplexity(depthConfig(), "综合分析一下", 1)
	assert.Equal(t, models.ComplexityMedium, level)
	assert.Equal(t, 6, max)
}

func TestAssessComplexityLongMultiStepIsHigh(t *testing.T) {
	text := "Analyze the latency to example.com in detail, and then compare it with the latency to example.org, and then summarize all findings"
	level, max := AssessComplexity(depthConfig(), text, 1)
	assert.Equal(t, models.ComplexityHigh, level)
	assert.Equal(t, 10, max)
}

func TestAssessComplexityMultiAgentPlanRaisesScore(t *testing.T) {
	single, _ := AssessComplexity(depthConfig(), "check the db", 1)
	multi, _ := AssessComplexity(depthConfig(), "check the db", 3)
	assert.Equal(t, models.ComplexityLow, single)
	assert.NotEqual(t, models.ComplexityLow, multi)
}

func TestAssessComplexityDisabled(t *testing.T) {
	cfg := depthConfig()
	cfg.Enabled = false
	level, max := AssessComplexity(cfg, "综合分析所有指标并详细对比", 5)
	assert.Equal(t, models.ComplexityMedium, level)
	assert.Equal(t, 10, max)
}

func TestAssessComplexityDeterministic(t *testing.T) {
	l1, m1 := AssessComplexity(depthConfig(), "query the user table and then check latency", 2)
	l2, m2 := AssessComplexity(depthConfig(), "query the user table and then check latency", 2)
	assert.Equal(t, l1, l2)
	assert.Equal(t, m1, m2)
}
