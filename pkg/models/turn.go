package models

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerAgent    Speaker = "agent"
)

// Turn is one STT utterance unit within a call.
type Turn struct {
	TurnID     int       `json:"turn_id"`
	Speaker    Speaker   `json:"speaker"`
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
}
