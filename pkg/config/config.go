// Package config loads and validates the service configuration from YAML
// with {{.ENV}} template expansion, merging user values over built-in
// defaults.
package config

import "time"

// Config is the fully resolved, validated service configuration.
type Config struct {
	configDir string

	Server     *ServerConfig
	LLM        *LLMConfig
	Embedding  *EmbeddingConfig
	Retrieval  *RetrievalConfig
	Directory  *DirectoryConfig
	Gatekeeper *GatekeeperConfig
}

// ServerConfig groups HTTP/WebSocket server settings.
type ServerConfig struct {
	AllowedCORSOrigins []string
	// WSWriteTimeout bounds a single WebSocket send to a monitor or
	// notification subscriber.
	WSWriteTimeout time.Duration
}

// LLMConfig holds the OpenAI-compatible endpoint settings. Model is used for
// generation and analysis; FastModel for the gatekeeper classifier and the
// marketing deep-analyze step.
type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	FastModel string
	Timeout   time.Duration
	MaxTokens int
}

// EmbeddingConfig holds the embedding endpoint settings. The endpoint shares
// BaseURL/APIKey with the chat endpoint.
type EmbeddingConfig struct {
	Model      string
	Dimensions int
}

// RetrievalConfig holds the document store settings.
type RetrievalConfig struct {
	DatabaseURL  string
	Table        string
	PerCategoryK int
	TopK         int
}

// DirectoryConfig holds the customer directory / persistence endpoint
// settings (the external Spring service).
type DirectoryConfig struct {
	BaseURL        string
	APIKey         string
	ProfileTimeout time.Duration
	UploadTimeout  time.Duration
}

// GatekeeperConfig holds the semantic cache settings.
type GatekeeperConfig struct {
	CacheSize int
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Defaults applied before user YAML is merged on top.

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		AllowedCORSOrigins: []string{"http://localhost:5173"},
		WSWriteTimeout:     10 * time.Second,
	}
}

func defaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:     "gpt-4o",
		FastModel: "gpt-4o-mini",
		Timeout:   60 * time.Second,
		MaxTokens: 1600,
	}
}

func defaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	}
}

func defaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		Table:        "documents",
		PerCategoryK: 4,
		TopK:         8,
	}
}

func defaultDirectoryConfig() *DirectoryConfig {
	return &DirectoryConfig{
		ProfileTimeout: 5 * time.Second,
		UploadTimeout:  10 * time.Second,
	}
}

func defaultGatekeeperConfig() *GatekeeperConfig {
	return &GatekeeperConfig{
		CacheSize: 256,
	}
}
