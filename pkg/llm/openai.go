package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/csnavigator/callcopilot/pkg/config"
)

// retryTokenCap bounds the doubled token budget used for the single retry
// after a length-truncated completion.
const retryTokenCap = 3200

// compactInstruction is appended to the user prompt when retrying a
// completion that was cut off by the token limit.
const compactInstruction = "이전 응답이 길이 제한으로 잘렸습니다. 동일한 JSON 스키마를 유지하되 각 필드를 최대한 간결하게 작성하세요."

// repairSystemPrompt asks the model to fix malformed JSON without changing
// its meaning. Used as the last stage of the parse ladder.
const repairSystemPrompt = "다음 텍스트를 유효한 JSON 객체로 수정하세요. 필드와 값의 의미는 바꾸지 말고, JSON 객체만 출력하세요."

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client    oai.Client
	model     string
	timeout   time.Duration
	maxTokens int
}

// NewOpenAIClient builds a client from the LLM configuration.
func NewOpenAIClient(cfg *config.LLMConfig) *OpenAIClient {
	return &OpenAIClient{
		client: oai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
		),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
	}
}

// ChatJSON requests a strict JSON completion. Contracts:
//
//   - a 4xx rejecting JSON mode is an error unless req.AllowTextFallback is
//     set, in which case the plain-text completion is wrapped as {"text": …}
//   - finish_reason=length triggers exactly one retry with a compaction
//     instruction and a doubled (capped) token budget
//   - output parsing: direct → fence-stripped → brace substring → one
//     repair completion; anything beyond that is ErrUnparsableJSON
func (c *OpenAIClient) ChatJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, finishReason, err := c.complete(ctx, req, true)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			if !req.AllowTextFallback {
				return nil, fmt.Errorf("llm: endpoint rejected JSON mode (status %d): %w", apiErr.StatusCode, err)
			}
			slog.Warn("JSON mode rejected, falling back to plain text",
				"status", apiErr.StatusCode, "model", c.effectiveModel(req))
			content, _, err = c.complete(ctx, req, false)
			if err != nil {
				return nil, fmt.Errorf("llm: plain-text fallback failed: %w", err)
			}
			return json.Marshal(map[string]string{"text": content})
		}
		return nil, fmt.Errorf("llm: chat completion failed: %w", err)
	}

	if finishReason == "length" {
		retry := req
		retry.User = req.User + "\n\n" + compactInstruction
		retry.MaxTokens = min(c.effectiveMaxTokens(req)*2, retryTokenCap)
		slog.Warn("Completion truncated by token limit, retrying compacted",
			"model", c.effectiveModel(req), "retry_max_tokens", retry.MaxTokens)
		if retryContent, _, retryErr := c.complete(ctx, retry, true); retryErr == nil {
			content = retryContent
		} else {
			slog.Warn("Length retry failed, keeping truncated output", "error", retryErr)
		}
	}

	if raw, ok := extractJSON(content); ok {
		return raw, nil
	}
	return c.repair(ctx, content)
}

// repair issues one completion asking the model to turn its previous output
// into valid JSON. A second failure is final.
func (c *OpenAIClient) repair(ctx context.Context, broken string) (json.RawMessage, error) {
	slog.Warn("LLM output failed JSON parsing, attempting repair", "length", len(broken))

	content, _, err := c.complete(ctx, Request{
		System:    repairSystemPrompt,
		User:      broken,
		MaxTokens: retryTokenCap,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("%w: repair call failed: %v", ErrUnparsableJSON, err)
	}
	if raw, ok := extractJSON(content); ok {
		return raw, nil
	}
	return nil, ErrUnparsableJSON
}

// complete runs a single chat completion and returns content and finish
// reason. jsonMode controls the response_format contract.
func (c *OpenAIClient) complete(ctx context.Context, req Request, jsonMode bool) (string, string, error) {
	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.effectiveModel(req)),
		MaxCompletionTokens: param.NewOpt(int64(c.effectiveMaxTokens(req))),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, oai.UserMessage(req.User))
	if req.HasTemperature {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if jsonMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", errors.New("llm: completion returned no choices")
	}
	choice := resp.Choices[0]
	return choice.Message.Content, choice.FinishReason, nil
}

func (c *OpenAIClient) effectiveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

func (c *OpenAIClient) effectiveMaxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.maxTokens
}
