// Package llm wraps an OpenAI-compatible chat endpoint with the structured
// output contracts the agent pipelines rely on: strict JSON mode, one bounded
// retry on length truncation, and a repair ladder for malformed JSON.
package llm

import (
	"context"
	"encoding/json"
)

// Request is a single chat completion request. Model selects the endpoint
// model; empty means the client's default. Temperature is only sent when
// HasTemperature is set so callers can distinguish 0.0 from unset.
type Request struct {
	Model          string
	System         string
	User           string
	Temperature    float64
	HasTemperature bool
	MaxTokens      int

	// AllowTextFallback opts in to plain-text completion when the endpoint
	// rejects JSON mode with a 4xx. Without it such rejections are errors.
	AllowTextFallback bool
}

// Client is the chat interface consumed by the agent pipelines and the
// end-of-call analyzer. Implementations must be safe for concurrent use.
type Client interface {
	// ChatJSON requests a completion in strict JSON mode and returns the
	// parsed object as raw JSON. The response is guaranteed to be a valid
	// JSON value or an error is returned.
	ChatJSON(ctx context.Context, req Request) (json.RawMessage, error)
}

// Decode is a convenience helper that runs ChatJSON and unmarshals the
// result into out.
func Decode[T any](ctx context.Context, c Client, req Request) (T, error) {
	var out T
	raw, err := c.ChatJSON(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
