package models

// NextStep is the routing decision emitted by an agent pipeline node.
type NextStep string

const (
	StepRetrieve NextStep = "retrieve"
	StepGenerate NextStep = "generate"
	StepSkip     NextStep = "skip"
)

// AgentResult is one agent's output for a single customer turn. Skipped
// handlers return NextStep == StepSkip and are filtered before broadcast.
type AgentResult struct {
	AgentType         string         `json:"agent_type"`
	NextStep          NextStep       `json:"next_step"`
	RecommendedAnswer string         `json:"recommended_answer,omitempty"`
	WorkGuide         string         `json:"work_guide,omitempty"`
	SkipReason        string         `json:"skip_reason,omitempty"`
	Extras            map[string]any `json:"extras,omitempty"`
}

// Skipped builds the sentinel result for a handler that opted out.
func Skipped(agentType, reason string) AgentResult {
	return AgentResult{AgentType: agentType, NextStep: StepSkip, SkipReason: reason}
}
