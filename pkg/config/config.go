// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable
// expansion, so a committed config file can reference ${CONFLUENCE_API_TOKEN}
// without carrying the secret itself. If target implements Validator it
// is validated after unmarshalling.
func Load[T any](filename string, target *T) error {
	if err := load(filename, target); err != nil {
		return err
	}
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadOptional loads the file when it exists and leaves target untouched
// when it does not. No validation is performed: the caller is expected to
// apply environment overrides first and validate the final value. Used
// for the optional confsync.yaml, whose credentials usually come from
// the environment rather than the file.
func LoadOptional[T any](filename string, target *T) (bool, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := load(filename, target); err != nil {
		return false, err
	}
	return true, nil
}

func load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}
