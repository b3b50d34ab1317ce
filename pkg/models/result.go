package models

// UsageTotals is the end-of-request rollup from the token ledger.
type UsageTotals struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

type Metadata struct {
	RoutingMethod   string      `json:"routingMethod"`
	TaskComplexity  Complexity  `json:"taskComplexity"`
	DurationSeconds float64     `json:"durationSeconds"`
	Usage           UsageTotals `json:"usage"`
}

// Result is everything a finished request produces. Answer is never empty.
type Result struct {
	Answer   string           `json:"answer"`
	Plan     []AgentPlanEntry `json:"plan,omitempty"`
	History  []ExecutionStep  `json:"history,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
	Metadata Metadata         `json:"metadata"`
}

type EventKind string

const (
	EventThought     EventKind = "thought"
	EventToolCall    EventKind = "tool_call"
	EventObservation EventKind = "observation"
	EventFinish      EventKind = "finish"
)

// Event is one progress notification, emitted after the underlying loop
// transition has committed. Events arrive in execution order.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Step        int            `json:"step"`
	Agent       string         `json:"agent,omitempty"`
	Thought     string         `json:"thought,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Answer      string         `json:"answer,omitempty"`
}
