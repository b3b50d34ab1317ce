package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig           `mapstructure:"server"`
	Log    LogConfig              `mapstructure:"log"`
	LLM    LLMConfig              `mapstructure:"llm"`
	Agents map[string]AgentConfig `mapstructure:"agents"`
	Router RouterConfig           `mapstructure:"router"`
	React  ReactConfig            `mapstructure:"react"`
	Answer AnswerConfig           `mapstructure:"answer"`
	Tokens TokenConfig            `mapstructure:"tokens"`
	MCP    MCPConfig              `mapstructure:"mcp"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type LLMConfig struct {
	Model string `mapstructure:"model"`
}

// AgentConfig describes one agent persona: a system prompt fragment bound to
// a namespace of tools.
type AgentConfig struct {
	FullName     string   `mapstructure:"full_name"`
	ShortNames   []string `mapstructure:"short_names"`
	Description  string   `mapstructure:"description"`
	SystemPrompt string   `mapstructure:"system_prompt"`
	ToolPrefix   string   `mapstructure:"tool_prefix"`
}

type RouterConfig struct {
	DefaultAgent        string        `mapstructure:"default_agent"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	ManualEnabled       bool          `mapstructure:"manual_enabled"`
	WorkflowEnabled     bool          `mapstructure:"workflow_enabled"`
	RulesEnabled        bool          `mapstructure:"rules_enabled"`
	FirstAction         bool          `mapstructure:"first_action"`
	TemplatesFile       string        `mapstructure:"templates_file"`
	KeywordRules        []KeywordRule `mapstructure:"keyword_rules"`
	Cache               CacheConfig   `mapstructure:"cache"`
}

type KeywordRule struct {
	Keywords        []string `mapstructure:"keywords"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords"`
	TargetAgent     string   `mapstructure:"target_agent"`
	Priority        float64  `mapstructure:"priority"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ReactConfig struct {
	AdaptiveDepth AdaptiveDepthConfig `mapstructure:"adaptive_depth"`
	History       HistoryConfig       `mapstructure:"history"`
	Batch         BatchConfig         `mapstructure:"batch"`
	MaxInputLen   int                 `mapstructure:"max_input_len"`
}

type AdaptiveDepthConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	LowMax     int  `mapstructure:"low_max"`
	MediumMax  int  `mapstructure:"medium_max"`
	HighMax    int  `mapstructure:"high_max"`
	DefaultMax int  `mapstructure:"default_max"`
}

type HistoryConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	WindowSize       int  `mapstructure:"window_size"`
	SummaryMaxLength int  `mapstructure:"summary_max_length"`
}

type BatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MaxSize int  `mapstructure:"max_size"`
}

type AnswerConfig struct {
	SkipAnalysis SkipAnalysisConfig `mapstructure:"skip_analysis"`
}

type SkipAnalysisConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	StepThreshold           int  `mapstructure:"step_threshold"`
	MultiAgentStepThreshold int  `mapstructure:"multi_agent_step_threshold"`
	AlwaysAnalyzeOnError    bool `mapstructure:"always_analyze_on_error"`
}

type TokenConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Pricing map[string]PriceRate `mapstructure:"pricing"`
}

// PriceRate is USD per million tokens.
type PriceRate struct {
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `mapstructure:"servers"`
}

type MCPServerConfig struct {
	Prefix  string   `mapstructure:"prefix"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the file whenever it changes on disk and hands each
// successfully parsed copy to onChange. A broken edit logs a warning and
// keeps the last good config in effect.
func Watch(path string, onChange func(*Config)) error {
	if path == "" {
		return errors.New("no config file to watch")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("config change ignored, unmarshal failed")
			return
		}
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("router.default_agent", "network_agent")
	v.SetDefault("router.confidence_threshold", 0.5)
	v.SetDefault("router.manual_enabled", true)
	v.SetDefault("router.workflow_enabled", true)
	v.SetDefault("router.rules_enabled", true)
	v.SetDefault("router.first_action", true)
	v.SetDefault("router.cache.enabled", true)
	v.SetDefault("router.cache.ttl", "1h")
	v.SetDefault("react.adaptive_depth.enabled", true)
	v.SetDefault("react.adaptive_depth.low_max", 3)
	v.SetDefault("react.adaptive_depth.medium_max", 6)
	v.SetDefault("react.adaptive_depth.high_max", 10)
	v.SetDefault("react.adaptive_depth.default_max", 10)
	v.SetDefault("react.history.enabled", true)
	v.SetDefault("react.history.window_size", 3)
	v.SetDefault("react.history.summary_max_length", 100)
	v.SetDefault("react.batch.enabled", false)
	v.SetDefault("react.batch.max_size", 5)
	v.SetDefault("react.max_input_len", 8000)
	v.SetDefault("answer.skip_analysis.enabled", true)
	v.SetDefault("answer.skip_analysis.step_threshold", 2)
	v.SetDefault("answer.skip_analysis.multi_agent_step_threshold", 3)
	v.SetDefault("answer.skip_analysis.always_analyze_on_error", true)
	v.SetDefault("tokens.enabled", true)
}

// MaxIterationsFor maps a complexity level onto the configured ceiling. A
// hard upper bound always exists so the loop can never run unbounded.
func (c AdaptiveDepthConfig) MaxIterationsFor(level string) int {
	var n int
	switch level {
	case "low":
		n = c.LowMax
	case "high":
		n = c.HighMax
	default:
		n = c.MediumMax
	}
	if n <= 0 {
		n = c.DefaultCeiling()
	}
	return n
}

func (c AdaptiveDepthConfig) DefaultCeiling() int {
	if c.DefaultMax <= 0 {
		return 10
	}
	return c.DefaultMax
}

func (c HistoryConfig) Window() int {
	if c.WindowSize <= 0 {
		return 3
	}
	return c.WindowSize
}

func (c HistoryConfig) SummaryLimit() int {
	if c.SummaryMaxLength <= 0 {
		return 100
	}
	return c.SummaryMaxLength
}

func (c BatchConfig) Size() int {
	if c.MaxSize <= 0 {
		return 5
	}
	if c.MaxSize > 9 {
		return 9
	}
	return c.MaxSize
}

func (c ReactConfig) InputLimit() int {
	if c.MaxInputLen <= 0 {
		return 8000
	}
	return c.MaxInputLen
}

// AgentByFullName resolves an agent by its routing name.
func (c *Config) AgentByFullName(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.FullName == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// ShortNameMap builds the case-insensitive short-name to full-name table
// used by manual routing.
func (c *Config) ShortNameMap() map[string]string {
	m := make(map[string]string)
	for _, a := range c.Agents {
		for _, s := range a.ShortNames {
			m[strings.ToLower(s)] = a.FullName
		}
	}
	return m
}

// AgentList returns the agents in a stable order for prompt assembly.
func (c *Config) AgentList() []AgentConfig {
	keys := make([]string, 0, len(c.Agents))
	for k := range c.Agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]AgentConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.Agents[k])
	}
	return out
}

func (c TokenConfig) RateFor(model string) PriceRate {
	if r, ok := c.Pricing[model]; ok {
		return r
	}
	if r, ok := c.Pricing["default"]; ok {
		return r
	}
	return PriceRate{Input: 1.0, Output: 3.0}
}
