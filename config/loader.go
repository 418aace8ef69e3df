package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from YAML and Environment variables.
// Priority: Env Vars > YAML > Defaults.
// This loader is immutable. It runs once at startup; pair it with a
// FileWatcher and a Container for live reloads.
type Loader[T any] struct {
	envPrefix  string
	configPath string
	validate   *validator.Validate
}

func NewLoader[T any](envPrefix, configPath string) *Loader[T] {
	return &Loader[T]{
		envPrefix:  envPrefix,
		configPath: configPath,
		validate:   validator.New(),
	}
}

// Load reads the configuration.
func (l *Loader[T]) Load() (*T, error) {
	var cfg T

	// 1. Load from YAML if exists
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			file, err := os.Open(l.configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer file.Close()

			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	// 2. Override with Environment Variables
	if err := envconfig.Process(l.envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	// 3. Reject impossible configurations before anything starts
	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
