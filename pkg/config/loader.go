package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// copilotYAMLConfig is the raw callcopilot.yaml file structure. Durations are
// strings ("60s") and parsed during resolution.
type copilotYAMLConfig struct {
	Server     *serverYAMLConfig     `yaml:"server"`
	LLM        *llmYAMLConfig        `yaml:"llm"`
	Embedding  *embeddingYAMLConfig  `yaml:"embedding"`
	Retrieval  *retrievalYAMLConfig  `yaml:"retrieval"`
	Directory  *directoryYAMLConfig  `yaml:"directory"`
	Gatekeeper *gatekeeperYAMLConfig `yaml:"gatekeeper"`
}

type serverYAMLConfig struct {
	AllowedCORSOrigins []string `yaml:"allowed_cors_origins"`
	WSWriteTimeout     string   `yaml:"ws_write_timeout,omitempty"`
}

type llmYAMLConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model,omitempty"`
	FastModel string `yaml:"fast_model,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

type embeddingYAMLConfig struct {
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

type retrievalYAMLConfig struct {
	DatabaseURL  string `yaml:"database_url"`
	Table        string `yaml:"table,omitempty"`
	PerCategoryK int    `yaml:"per_category_k,omitempty"`
	TopK         int    `yaml:"top_k,omitempty"`
}

type directoryYAMLConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	ProfileTimeout string `yaml:"profile_timeout,omitempty"`
	UploadTimeout  string `yaml:"upload_timeout,omitempty"`
}

type gatekeeperYAMLConfig struct {
	CacheSize int `yaml:"cache_size,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load callcopilot.yaml from configDir
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML into raw structs
//  4. Merge user values over built-in defaults
//  5. Validate and return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"llm_model", cfg.LLM.Model,
		"fast_model", cfg.LLM.FastModel,
		"retrieval_table", cfg.Retrieval.Table)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	raw, err := loader.loadCopilotYAML()
	if err != nil {
		return nil, NewLoadError("callcopilot.yaml", err)
	}

	serverCfg, err := resolveServerConfig(raw.Server)
	if err != nil {
		return nil, err
	}
	llmCfg, err := resolveLLMConfig(raw.LLM)
	if err != nil {
		return nil, err
	}
	embeddingCfg, err := resolveEmbeddingConfig(raw.Embedding)
	if err != nil {
		return nil, err
	}
	retrievalCfg, err := resolveRetrievalConfig(raw.Retrieval)
	if err != nil {
		return nil, err
	}
	directoryCfg, err := resolveDirectoryConfig(raw.Directory)
	if err != nil {
		return nil, err
	}
	gatekeeperCfg, err := resolveGatekeeperConfig(raw.Gatekeeper)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:  configDir,
		Server:     serverCfg,
		LLM:        llmCfg,
		Embedding:  embeddingCfg,
		Retrieval:  retrievalCfg,
		Directory:  directoryCfg,
		Gatekeeper: gatekeeperCfg,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser fail with a clearer message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadCopilotYAML() (*copilotYAMLConfig, error) {
	var raw copilotYAMLConfig
	if err := l.loadYAML("callcopilot.yaml", &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// parseDuration parses a YAML duration string, returning fallback for empty
// input and warning on invalid input.
func parseDuration(field, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field, "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func resolveServerConfig(raw *serverYAMLConfig) (*ServerConfig, error) {
	cfg := defaultServerConfig()
	if raw == nil {
		return cfg, nil
	}
	if len(raw.AllowedCORSOrigins) > 0 {
		cfg.AllowedCORSOrigins = raw.AllowedCORSOrigins
	}
	cfg.WSWriteTimeout = parseDuration("server.ws_write_timeout", raw.WSWriteTimeout, cfg.WSWriteTimeout)
	return cfg, nil
}

func resolveLLMConfig(raw *llmYAMLConfig) (*LLMConfig, error) {
	cfg := defaultLLMConfig()
	if raw == nil {
		return cfg, nil
	}
	user := &LLMConfig{
		BaseURL:   raw.BaseURL,
		APIKey:    raw.APIKey,
		Model:     raw.Model,
		FastModel: raw.FastModel,
		MaxTokens: raw.MaxTokens,
	}
	// Merge user-provided values into defaults (non-zero values override).
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge llm config: %w", err)
	}
	cfg.Timeout = parseDuration("llm.timeout", raw.Timeout, cfg.Timeout)
	return cfg, nil
}

func resolveEmbeddingConfig(raw *embeddingYAMLConfig) (*EmbeddingConfig, error) {
	cfg := defaultEmbeddingConfig()
	if raw == nil {
		return cfg, nil
	}
	user := &EmbeddingConfig{Model: raw.Model, Dimensions: raw.Dimensions}
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge embedding config: %w", err)
	}
	return cfg, nil
}

func resolveRetrievalConfig(raw *retrievalYAMLConfig) (*RetrievalConfig, error) {
	cfg := defaultRetrievalConfig()
	if raw == nil {
		return cfg, nil
	}
	user := &RetrievalConfig{
		DatabaseURL:  raw.DatabaseURL,
		Table:        raw.Table,
		PerCategoryK: raw.PerCategoryK,
		TopK:         raw.TopK,
	}
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge retrieval config: %w", err)
	}
	return cfg, nil
}

func resolveDirectoryConfig(raw *directoryYAMLConfig) (*DirectoryConfig, error) {
	cfg := defaultDirectoryConfig()
	if raw == nil {
		return cfg, nil
	}
	if raw.BaseURL != "" {
		cfg.BaseURL = raw.BaseURL
	}
	if raw.APIKey != "" {
		cfg.APIKey = raw.APIKey
	}
	cfg.ProfileTimeout = parseDuration("directory.profile_timeout", raw.ProfileTimeout, cfg.ProfileTimeout)
	cfg.UploadTimeout = parseDuration("directory.upload_timeout", raw.UploadTimeout, cfg.UploadTimeout)
	return cfg, nil
}

func resolveGatekeeperConfig(raw *gatekeeperYAMLConfig) (*GatekeeperConfig, error) {
	cfg := defaultGatekeeperConfig()
	if raw == nil {
		return cfg, nil
	}
	if raw.CacheSize > 0 {
		cfg.CacheSize = raw.CacheSize
	}
	return cfg, nil
}
