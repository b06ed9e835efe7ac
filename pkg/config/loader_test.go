package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "callcopilot.yaml"), []byte(content), 0o600))
	return dir
}

const minimalYAML = `
llm:
  base_url: "http://localhost:4000/v1"
  api_key: "test-key"
retrieval:
  database_url: "postgres://localhost:5432/copilot"
directory:
  base_url: "http://localhost:8080/api/v1"
`

func TestInitializeMinimal(t *testing.T) {
	dir := writeConfig(t, minimalYAML)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// Defaults fill everything the file omits.
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.FastModel)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1600, cfg.LLM.MaxTokens)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "documents", cfg.Retrieval.Table)
	assert.Equal(t, 4, cfg.Retrieval.PerCategoryK)
	assert.Equal(t, 5*time.Second, cfg.Directory.ProfileTimeout)
	assert.Equal(t, 10*time.Second, cfg.Directory.UploadTimeout)
	assert.Equal(t, 256, cfg.Gatekeeper.CacheSize)
}

func TestInitializeOverrides(t *testing.T) {
	dir := writeConfig(t, `
server:
  allowed_cors_origins: ["https://console.example.com"]
  ws_write_timeout: "3s"
llm:
  base_url: "http://localhost:4000/v1"
  api_key: "test-key"
  model: "gpt-4.1"
  timeout: "30s"
  max_tokens: 800
retrieval:
  database_url: "postgres://localhost:5432/copilot"
  per_category_k: 6
directory:
  base_url: "http://localhost:8080/api/v1"
gatekeeper:
  cache_size: 64
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://console.example.com"}, cfg.Server.AllowedCORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.Server.WSWriteTimeout)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 800, cfg.LLM.MaxTokens)
	assert.Equal(t, 6, cfg.Retrieval.PerCategoryK)
	assert.Equal(t, 64, cfg.Gatekeeper.CacheSize)
}

func TestInitializeEnvExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret-from-env")
	dir := writeConfig(t, `
llm:
  base_url: "http://localhost:4000/v1"
  api_key: "{{.TEST_LLM_KEY}}"
retrieval:
  database_url: "postgres://localhost:5432/copilot"
directory:
  base_url: "http://localhost:8080/api/v1"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.LLM.APIKey)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing llm base_url",
			yaml: `
llm:
  api_key: "k"
retrieval:
  database_url: "postgres://localhost/copilot"
directory:
  base_url: "http://localhost:8080"
`,
		},
		{
			name: "missing retrieval database_url",
			yaml: `
llm:
  base_url: "http://localhost:4000/v1"
  api_key: "k"
directory:
  base_url: "http://localhost:8080"
`,
		},
		{
			name: "missing directory base_url",
			yaml: `
llm:
  base_url: "http://localhost:4000/v1"
  api_key: "k"
retrieval:
  database_url: "postgres://localhost/copilot"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.yaml)
			_, err := Initialize(context.Background(), dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
