package events

import "github.com/csnavigator/callcopilot/pkg/models"

// Monitor frame types.
const (
	FrameTranscriptUpdate = "transcript_update"
	FrameResult           = "result"
)

// TranscriptUpdate mirrors one appended turn to the monitor room. Frames
// are sent in turn arrival order.
type TranscriptUpdate struct {
	Type   string      `json:"type"`
	CallID string      `json:"callId"`
	Turn   models.Turn `json:"turn"`
}

// NewTranscriptUpdate builds the frame for an appended turn.
func NewTranscriptUpdate(callID string, turn models.Turn) TranscriptUpdate {
	return TranscriptUpdate{Type: FrameTranscriptUpdate, CallID: callID, Turn: turn}
}

// ResultFrame carries one agent's result for a turn. Results stream in
// completion order, not agent registration order.
type ResultFrame struct {
	Type   string             `json:"type"`
	CallID string             `json:"callId"`
	TurnID int                `json:"turn_id"`
	Result models.AgentResult `json:"result"`
}

// NewResultFrame builds the frame for a completed agent result.
func NewResultFrame(callID string, turnID int, result models.AgentResult) ResultFrame {
	return ResultFrame{Type: FrameResult, CallID: callID, TurnID: turnID, Result: result}
}
