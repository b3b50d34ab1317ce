package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"netagent/internal/config"
	"netagent/pkg/models"
)

// CallUsage is one append-only ledger row, written once per model call.
type CallUsage struct {
	Node         string    `json:"node"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CostUSD      float64   `json:"costUsd"`
	At           time.Time `json:"at"`
}

// Ledger accumulates per-request token usage and estimated cost. It is a
// process-wide service; entries are keyed by request id and dropped when the
// request's summary is taken.
type Ledger struct {
	mu       sync.Mutex
	cfg      config.TokenConfig
	requests map[string][]CallUsage
}

func NewLedger(cfg config.TokenConfig) *Ledger {
	return &Ledger{
		cfg:      cfg,
		requests: make(map[string][]CallUsage),
	}
}

func (l *Ledger) Record(requestID, node, model string, in, out int) {
	if !l.cfg.Enabled {
		return
	}
	rate := l.cfg.RateFor(model)
	row := CallUsage{
		Node:         node,
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      float64(in)/1e6*rate.Input + float64(out)/1e6*rate.Output,
		At:           time.Now(),
	}
	l.mu.Lock()
	l.requests[requestID] = append(l.requests[requestID], row)
	l.mu.Unlock()
}

// Summary rolls up and forgets a request's usage.
func (l *Ledger) Summary(requestID string) models.UsageTotals {
	l.mu.Lock()
	rows := l.requests[requestID]
	delete(l.requests, requestID)
	l.mu.Unlock()

	var t models.UsageTotals
	for _, r := range rows {
		t.InputTokens += r.InputTokens
		t.OutputTokens += r.OutputTokens
		t.CostUSD += r.CostUSD
	}
	if len(rows) > 0 {
		log.Debug().Str("request", requestID).Int("calls", len(rows)).
			Int("input_tokens", t.InputTokens).Int("output_tokens", t.OutputTokens).
			Float64("cost_usd", t.CostUSD).Msg("token usage summary")
	}
	return t
}

// Calls returns a copy of a request's rows, for inspection.
func (l *Ledger) Calls(requestID string) []CallUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := l.requests[requestID]
	out := make([]CallUsage, len(rows))
	copy(out, rows)
	return out
}

type tracked struct {
	inner     Client
	ledger    *Ledger
	requestID string
	node      string
	model     string
}

// Tracking wraps a client so every completion writes one ledger row
// attributed to the given request and pipeline node.
func Tracking(inner Client, ledger *Ledger, requestID, node, model string) Client {
	return &tracked{inner: inner, ledger: ledger, requestID: requestID, node: node, model: model}
}

func (t *tracked) Complete(ctx context.Context, prompt string) (Completion, error) {
	c, err := t.inner.Complete(ctx, prompt)
	if err != nil {
		return c, err
	}
	t.ledger.Record(t.requestID, t.node, t.model, c.InputTokens, c.OutputTokens)
	return c, nil
}
