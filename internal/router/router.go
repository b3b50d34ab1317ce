package router

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/tools"
	"netagent/pkg/data"
	"netagent/pkg/models"
	"netagent/pkg/prompts"
	"netagent/pkg/template"
)

// Routing method names, recorded into request metadata.
const (
	MethodCache    = "cache"
	MethodManual   = "manual"
	MethodWorkflow = "workflow"
	MethodRules    = "rules"
	MethodLLM      = "llm"
	MethodFallback = "fallback"
)

// FollowUpAnswer is the fixed sentinel returned for follow-up suggestion
// requests, which some chat clients fire after every answer. Routing them
// to agents would burn a full loop on a non-question.
const FollowUpAnswer = `{"follow_ups": []}`

var manualRe = regexp.MustCompile(`@(\w+)\s+([^@]+)`)

// Result is one routing decision: an ordered agent plan, the method that
// produced it, and optionally a pre-decided opening tool call for the first
// agent.
type Result struct {
	Plan        []models.AgentPlanEntry
	FirstAction *models.Decision
	Method      string
	FollowUp    bool
}

// Router classifies a request into an agent plan. Cheap matchers run first;
// the model is only consulted when manual markers, workflow templates and
// keyword rules all fail, and its answers are cached by content hash.
type Router struct {
	invoker tools.Invoker
	group   singleflight.Group

	mu        sync.RWMutex
	cfg       *config.Config
	cache     *Cache
	templates []config.WorkflowTemplate
}

func New(cfg *config.Config, invoker tools.Invoker) *Router {
	r := &Router{invoker: invoker}
	r.apply(cfg)
	return r
}

// Reload swaps in fresh routing settings on a config change. The decision
// cache is rebuilt so plans produced under the old rules don't outlive them.
func (r *Router) Reload(cfg *config.Config) {
	r.mu.Lock()
	r.apply(cfg)
	r.mu.Unlock()
	log.Info().Msg("router config reloaded")
}

func (r *Router) apply(cfg *config.Config) {
	r.cfg = cfg
	r.cache = nil
	if cfg.Router.Cache.Enabled {
		r.cache = NewCache(cfg.Router.Cache.TTL)
	}
	r.templates = nil
	if cfg.Router.WorkflowEnabled && cfg.Router.TemplatesFile != "" {
		ts, err := config.LoadWorkflowTemplates(cfg.Router.TemplatesFile)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.Router.TemplatesFile).Msg("loading workflow templates failed, stage disabled")
		} else {
			r.templates = ts
		}
	}
}

func (r *Router) snapshot() (*config.Config, *Cache, []config.WorkflowTemplate) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.cache, r.templates
}

// Route runs the decision cascade. The first stage producing a non-empty
// plan wins; if every stage fails the default agent takes the request. The
// model client is passed per call so usage lands on the calling request's
// ledger.
func (r *Router) Route(ctx context.Context, model llm.Client, query string) Result {
	cfg, cache, templates := r.snapshot()

	if isFollowUpRequest(query) {
		log.Info().Msg("follow-up suggestions request, skipping routing")
		return Result{FollowUp: true}
	}

	if cache != nil {
		if plan, first, ok := cache.Get(query); ok {
			log.Info().Msg("routing served from cache")
			return Result{Plan: plan, FirstAction: first, Method: MethodCache}
		}
	}

	if cfg.Router.ManualEnabled {
		if plan := parseManual(cfg, query); len(plan) > 0 {
			return Result{Plan: plan, Method: MethodManual}
		}
	}

	if cfg.Router.WorkflowEnabled {
		if plan := matchWorkflow(templates, query); len(plan) > 0 {
			return Result{Plan: plan, Method: MethodWorkflow}
		}
	}

	if cfg.Router.RulesEnabled {
		if plan := matchRules(cfg, query); len(plan) > 0 {
			return Result{Plan: plan, Method: MethodRules}
		}
	}

	if plan, first := r.llmRoute(ctx, model, cfg, query); len(plan) > 0 {
		if cache != nil {
			cache.Set(query, plan, first)
		}
		return Result{Plan: plan, FirstAction: first, Method: MethodLLM}
	}

	log.Warn().Str("default_agent", cfg.Router.DefaultAgent).Msg("all routing stages failed, using default agent")
	return Result{
		Plan: []models.AgentPlanEntry{{
			Name:   cfg.Router.DefaultAgent,
			Task:   query,
			Status: models.AgentPending,
		}},
		Method: MethodFallback,
	}
}

func isFollowUpRequest(query string) bool {
	lower := strings.ToLower(query)
	if strings.Contains(lower, "follow_up") {
		return true
	}
	return strings.Contains(lower, "suggest") && strings.Contains(lower, "question")
}

// parseManual reads "@agent task" segments in textual order. Unknown short
// names are skipped; if nothing maps, the stage yields no plan.
func parseManual(cfg *config.Config, query string) []models.AgentPlanEntry {
	matches := manualRe.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return nil
	}

	shortNames := cfg.ShortNameMap()
	var plan []models.AgentPlanEntry
	for _, m := range matches {
		full, ok := shortNames[strings.ToLower(m[1])]
		if !ok {
			log.Warn().Str("short_name", m[1]).Msg("unknown agent in manual routing, skipping")
			continue
		}
		plan = append(plan, models.AgentPlanEntry{
			Name:   full,
			Task:   strings.TrimSpace(m[2]),
			Status: models.AgentPending,
		})
	}
	if len(plan) > 0 {
		log.Info().Int("agents", len(plan)).Msg("manual routing matched")
	}
	return plan
}

// matchWorkflow expands the first template whose keywords appear in the
// query and whose required parameters can all be extracted.
func matchWorkflow(templates []config.WorkflowTemplate, query string) []models.AgentPlanEntry {
	for _, t := range templates {
		if !containsAny(query, t.Keywords) {
			continue
		}

		params, missing := extractTemplateParams(query, t)
		if len(missing) > 0 {
			log.Warn().Str("workflow", t.Name).Strs("missing", missing).Msg("template matched but required parameters missing, skipping")
			continue
		}

		plan := make([]models.AgentPlanEntry, 0, len(t.Agents))
		for _, a := range t.Agents {
			task := a.TaskTemplate
			for name, value := range params {
				task = strings.ReplaceAll(task, "{"+name+"}", value)
			}
			plan = append(plan, models.AgentPlanEntry{Name: a.Name, Task: task, Status: models.AgentPending})
		}
		log.Info().Str("workflow", t.Name).Int("agents", len(plan)).Msg("workflow template matched")
		return plan
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func extractTemplateParams(query string, t config.WorkflowTemplate) (map[string]string, []string) {
	params := make(map[string]string)
	var missing []string
	for _, p := range t.Parameters {
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				log.Warn().Err(err).Str("param", p.Name).Msg("bad template parameter pattern")
			} else if m := re.FindString(query); m != "" {
				params[p.Name] = m
				continue
			}
		}
		if p.Default != "" {
			params[p.Name] = p.Default
			continue
		}
		if p.Required {
			missing = append(missing, p.Name)
		}
	}
	return params, missing
}

// matchRules scores every keyword rule and keeps the best one, accepting it
// only above the confidence threshold. Score is the matched-keyword fraction
// scaled by rule priority.
func matchRules(cfg *config.Config, query string) []models.AgentPlanEntry {
	lower := strings.ToLower(query)

	var bestAgent string
	var bestScore float64
	for _, rule := range cfg.Router.KeywordRules {
		if len(rule.Keywords) == 0 || ruleExcluded(lower, rule) {
			continue
		}
		matched := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(rule.Keywords)) * rule.Priority
		if score > bestScore {
			bestScore = score
			bestAgent = rule.TargetAgent
		}
	}

	if bestAgent == "" {
		return nil
	}
	if bestScore < cfg.Router.ConfidenceThreshold {
		log.Info().Float64("score", bestScore).Float64("threshold", cfg.Router.ConfidenceThreshold).
			Msg("rule match below confidence threshold, falling through")
		return nil
	}

	log.Info().Str("agent", bestAgent).Float64("score", bestScore).Msg("keyword rule matched")
	return []models.AgentPlanEntry{{Name: bestAgent, Task: query, Status: models.AgentPending}}
}

func ruleExcluded(lowerQuery string, rule config.KeywordRule) bool {
	for _, kw := range rule.ExcludeKeywords {
		if strings.Contains(lowerQuery, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

type llmRouteResponse struct {
	Agents []struct {
		Name string `json:"name"`
		Task string `json:"task"`
	} `json:"agents"`
	FirstAction *struct {
		Thought string         `json:"thought"`
		Tool    string         `json:"tool"`
		Params  map[string]any `json:"params"`
	} `json:"first_action"`
	Reasoning string `json:"reasoning"`
}

// llmRoute asks the model for a plan. Concurrent identical questions share
// one in-flight call.
func (r *Router) llmRoute(ctx context.Context, model llm.Client, cfg *config.Config, query string) ([]models.AgentPlanEntry, *models.Decision) {
	type routed struct {
		plan  []models.AgentPlanEntry
		first *models.Decision
	}

	v, err, _ := r.group.Do(cacheKey(query), func() (any, error) {
		plan, first, err := r.llmRouteOnce(ctx, model, cfg, query)
		if err != nil {
			return nil, err
		}
		return routed{plan: plan, first: first}, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("model routing failed")
		return nil, nil
	}
	res := v.(routed)
	return clonePlan(res.plan), res.first
}

func (r *Router) llmRouteOnce(ctx context.Context, model llm.Client, cfg *config.Config, query string) ([]models.AgentPlanEntry, *models.Decision, error) {
	system := r.buildSystemPrompt(ctx, cfg)
	user, err := template.Parse(prompts.RouterUserTemplate, map[string]any{"Question": query})
	if err != nil {
		return nil, nil, fmt.Errorf("user prompt: %w", err)
	}

	completion, err := model.Complete(ctx, system+"\n\n"+user)
	if err != nil {
		return nil, nil, fmt.Errorf("complete: %w", err)
	}

	return parseLLMResponse(completion.Text)
}

// buildSystemPrompt describes every configured agent with its live tool
// list so the model routes against what actually exists.
func (r *Router) buildSystemPrompt(ctx context.Context, cfg *config.Config) string {
	var b strings.Builder
	b.WriteString(prompts.RouterPreamble)

	for i, a := range cfg.AgentList() {
		b.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, a.FullName, a.Description))
		if list, err := r.invoker.List(ctx, a.ToolPrefix); err == nil && len(list) > 0 {
			names := make([]string, 0, len(list))
			for _, t := range list {
				names = append(names, t.Name)
			}
			b.WriteString("   Tools: " + strings.Join(names, ", ") + "\n")
		}
	}

	if cfg.Router.FirstAction {
		b.WriteString(prompts.RouterInstructionsFirstAction)
	} else {
		b.WriteString(prompts.RouterInstructions)
	}
	return b.String()
}

func parseLLMResponse(text string) ([]models.AgentPlanEntry, *models.Decision, error) {
	raw, err := data.ExtractJSONObject(text)
	if err != nil {
		return nil, nil, fmt.Errorf("no json in routing response: %w", err)
	}

	var resp llmRouteResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, nil, fmt.Errorf("unmarshal routing response: %w", err)
	}
	if len(resp.Agents) == 0 {
		return nil, nil, fmt.Errorf("routing response has no agents")
	}

	plan := make([]models.AgentPlanEntry, 0, len(resp.Agents))
	for i, a := range resp.Agents {
		if a.Name == "" || a.Task == "" {
			return nil, nil, fmt.Errorf("routing response agent %d missing name or task", i)
		}
		plan = append(plan, models.AgentPlanEntry{Name: a.Name, Task: a.Task, Status: models.AgentPending})
	}

	var first *models.Decision
	if fa := resp.FirstAction; fa != nil && fa.Tool != "" {
		params := fa.Params
		if params == nil {
			params = map[string]any{}
		}
		first = &models.Decision{
			Thought: fa.Thought,
			Action:  models.Action{Type: models.ActionTool, Tool: fa.Tool, Params: params},
		}
	}
	return plan, first, nil
}
