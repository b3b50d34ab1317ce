package handler

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"netagent/internal/answer"
	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/react"
	"netagent/internal/router"
	"netagent/internal/tools"
	"netagent/pkg/logger"
	"netagent/pkg/models"
)

// Handler runs the whole request pipeline: scrub input, route, assess
// complexity, execute the reasoning loop, assemble the answer, roll up
// usage. It never returns an error; failures surface inside the result.
type Handler struct {
	model   llm.Client
	ledger  *llm.Ledger
	router  *router.Router
	invoker tools.Invoker

	mu        sync.RWMutex
	cfg       *config.Config
	assembler *answer.Assembler
}

func New(cfg *config.Config, model llm.Client, ledger *llm.Ledger, rt *router.Router, invoker tools.Invoker) *Handler {
	return &Handler{
		cfg:       cfg,
		model:     model,
		ledger:    ledger,
		router:    rt,
		invoker:   invoker,
		assembler: answer.New(cfg),
	}
}

// Reload swaps in a fresh config. In-flight requests finish on the config
// they started with; the next request picks up the new one.
func (h *Handler) Reload(cfg *config.Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.assembler = answer.New(cfg)
	h.mu.Unlock()
	log.Info().Msg("handler config reloaded")
}

func (h *Handler) snapshot() (*config.Config, *answer.Assembler) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.assembler
}

// Handle processes one request end to end and always produces a result with
// a non-empty answer.
func (h *Handler) Handle(ctx context.Context, requestID, question string, sink react.EventSink) *models.Result {
	start := time.Now()
	l := log.With().Str(logger.RequestIDField, requestID).Logger()
	cfg, assembler := h.snapshot()

	question = scrub(cfg, question)
	if question == "" {
		return &models.Result{
			Answer:   "The request was empty after sanitization; please rephrase your question.",
			Metadata: models.Metadata{DurationSeconds: time.Since(start).Seconds()},
		}
	}

	route := h.router.Route(ctx, h.tracked(cfg, requestID, "router"), question)
	if route.FollowUp {
		return &models.Result{
			Answer:   router.FollowUpAnswer,
			Metadata: models.Metadata{RoutingMethod: "skip", DurationSeconds: time.Since(start).Seconds()},
		}
	}
	l.Info().Str("routing_method", route.Method).Int("agents", len(route.Plan)).Msg("request routed")

	level, maxIterations := react.AssessComplexity(cfg.React.AdaptiveDepth, question, len(route.Plan))

	controller := react.NewController(cfg, h.tracked(cfg, requestID, "react"), h.invoker)
	run := controller.Execute(ctx, route.Plan, route.FirstAction, maxIterations, sink)

	text, asmErrs := assembler.Assemble(ctx, h.tracked(cfg, requestID, "answer"), question, route.Plan, run)

	res := &models.Result{
		Answer:  text,
		Plan:    route.Plan,
		History: run.History,
		Errors:  append(append([]string{}, run.Errors...), asmErrs...),
		Metadata: models.Metadata{
			RoutingMethod:   route.Method,
			TaskComplexity:  level,
			DurationSeconds: time.Since(start).Seconds(),
			Usage:           h.ledger.Summary(requestID),
		},
	}

	if sink != nil {
		sink(models.Event{Kind: models.EventFinish, Step: run.State.CurrentStep, Answer: text})
	}
	l.Info().Float64("duration_s", res.Metadata.DurationSeconds).Int("steps", len(run.History)).
		Int("errors", len(res.Errors)).Msg("request finished")
	return res
}

func (h *Handler) tracked(cfg *config.Config, requestID, node string) llm.Client {
	return llm.Tracking(h.model, h.ledger, requestID, node, cfg.LLM.Model)
}

// scrub strips control characters and bounds input length before anything
// downstream sees the text.
func scrub(cfg *config.Config, question string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, question)
	cleaned = strings.TrimSpace(cleaned)

	if limit := cfg.React.InputLimit(); len([]rune(cleaned)) > limit {
		log.Warn().Int("limit", limit).Msg("request text over input limit, truncating")
		cleaned = react.TruncateRunes(cleaned, limit)
	}
	return cleaned
}
