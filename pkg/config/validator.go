package config

import "fmt"

// Validator performs validation on a loaded Config.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check and returns the first failure.
func (v *Validator) ValidateAll() error {
	checks := []func() error{
		v.validateLLM,
		v.validateEmbedding,
		v.validateRetrieval,
		v.validateDirectory,
		v.validateGatekeeper,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateLLM() error {
	llm := v.cfg.LLM
	if llm.BaseURL == "" {
		return fmt.Errorf("%w: llm.base_url is required", ErrValidation)
	}
	if llm.APIKey == "" {
		return fmt.Errorf("%w: llm.api_key is required", ErrValidation)
	}
	if llm.Model == "" || llm.FastModel == "" {
		return fmt.Errorf("%w: llm.model and llm.fast_model must be set", ErrValidation)
	}
	if llm.MaxTokens <= 0 {
		return fmt.Errorf("%w: llm.max_tokens must be positive", ErrValidation)
	}
	return nil
}

func (v *Validator) validateEmbedding() error {
	emb := v.cfg.Embedding
	if emb.Model == "" {
		return fmt.Errorf("%w: embedding.model is required", ErrValidation)
	}
	if emb.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive", ErrValidation)
	}
	return nil
}

func (v *Validator) validateRetrieval() error {
	r := v.cfg.Retrieval
	if r.DatabaseURL == "" {
		return fmt.Errorf("%w: retrieval.database_url is required", ErrValidation)
	}
	if r.PerCategoryK <= 0 || r.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.per_category_k and retrieval.top_k must be positive", ErrValidation)
	}
	return nil
}

func (v *Validator) validateDirectory() error {
	if v.cfg.Directory.BaseURL == "" {
		return fmt.Errorf("%w: directory.base_url is required", ErrValidation)
	}
	return nil
}

func (v *Validator) validateGatekeeper() error {
	if v.cfg.Gatekeeper.CacheSize <= 0 {
		return fmt.Errorf("%w: gatekeeper.cache_size must be positive", ErrValidation)
	}
	return nil
}
