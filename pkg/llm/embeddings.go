package llm

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/csnavigator/callcopilot/pkg/config"
)

// OpenAIEmbedder produces dense vectors through the OpenAI-compatible
// embeddings endpoint. It shares credentials with the chat endpoint.
type OpenAIEmbedder struct {
	client     oai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder builds an embedder from the LLM and embedding configs.
func NewOpenAIEmbedder(llmCfg *config.LLMConfig, embCfg *config.EmbeddingConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: oai.NewClient(
			option.WithAPIKey(llmCfg.APIKey),
			option.WithBaseURL(llmCfg.BaseURL),
		),
		model:      embCfg.Model,
		dimensions: embCfg.Dimensions,
	}
}

// Dimensions returns the configured vector width.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the dense vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(e.model),
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return float64sToFloat32(resp.Data[0].Embedding), nil
}

func float64sToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
