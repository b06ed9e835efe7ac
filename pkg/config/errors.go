package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a required configuration file is missing.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrInvalidYAML indicates a configuration file failed to parse.
	ErrInvalidYAML = errors.New("invalid YAML")
	// ErrValidation indicates the loaded configuration failed validation.
	ErrValidation = errors.New("configuration validation error")
)

// LoadError wraps a file-level load failure with the file name.
type LoadError struct {
	File string
	Err  error
}

// NewLoadError creates a LoadError for the given file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
