package models

import (
	"time"
)

type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// AgentPlanEntry is one (agent, task) pair produced by routing. Entries are
// never removed from a plan, only their Status changes.
type AgentPlanEntry struct {
	Name   string      `json:"name"`
	Task   string      `json:"task"`
	Status AgentStatus `json:"status"`
}

type ActionType string

const (
	ActionTool    ActionType = "TOOL"
	ActionFinish  ActionType = "FINISH"
	ActionUnknown ActionType = "UNKNOWN"
)

type Action struct {
	Type   ActionType     `json:"type"`
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// QueuedTool is one pre-planned tool call waiting in the batch queue.
type QueuedTool struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Decision is the structured form of one model reasoning step. Batch holds
// additional pre-planned calls beyond the primary action; the first batch
// entry is always mirrored into Action.
type Decision struct {
	Thought string       `json:"thought"`
	Action  Action       `json:"action"`
	Batch   []QueuedTool `json:"batch,omitempty"`
}

// ExecutionStep records one completed loop iteration. History is append-only
// and its order is the execution order.
type ExecutionStep struct {
	Step        int       `json:"step"`
	Thought     string    `json:"thought"`
	Action      Action    `json:"action"`
	Observation string    `json:"observation"`
	Timestamp   time.Time `json:"timestamp"`
}

// LoopState is the mutable per-request loop state. It is owned exclusively
// by the loop controller for the duration of one request.
//
// Invariants: CurrentStep only increases, Finished never reverts to false,
// ToolQueue drains strictly FIFO before a new model call is made.
type LoopState struct {
	CurrentStep     int
	MaxIterations   int
	Finished        bool
	NextAction      *Decision
	LastObservation string
	ToolQueue       []QueuedTool
	AgentIndex      int
	SkipFirstThink  bool
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)
