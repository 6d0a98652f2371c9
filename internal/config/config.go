// Package config provides configuration for the encounter service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Generator modes.
const (
	GeneratorTemplate = "template"
	GeneratorLLM      = "llm"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`
	RPCAddr  string `env:"RPC_ADDR" envDefault:":8082"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:semitae.db?cache=shared&mode=rwc&_busy_timeout=5000"`

	// Ingress settings
	IngressURL string `env:"INGRESS_URL"`

	// Workflow bounds
	WorkflowTimeout      time.Duration `env:"WORKFLOW_TIMEOUT" envDefault:"10s"`
	StepTimeout          time.Duration `env:"STEP_TIMEOUT" envDefault:"3s"`
	StepMaxAttempts      uint          `env:"STEP_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"1s"`
	RunSweepInterval     time.Duration `env:"RUN_SWEEP_INTERVAL" envDefault:"30s"`

	// Rules
	PolicyFile string `env:"POLICY_FILE"`

	// Message generation
	GeneratorMode string        `env:"GENERATOR_MODE" envDefault:"template"`
	LiteLLMURL    string        `env:"LITELLM_URL" envDefault:"http://localhost:4000"`
	LiteLLMAPIKey string        `env:"LITELLM_API_KEY"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"5s"`

	// Tracing
	OTelEndpoint    string  `env:"OTEL_ENDPOINT"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the workflow bounds are coherent.
func (c *Config) Validate() error {
	if c.WorkflowTimeout <= 0 || c.StepTimeout <= 0 {
		return fmt.Errorf("invalid config: timeouts must be positive")
	}
	if c.StepTimeout >= c.WorkflowTimeout {
		return fmt.Errorf("invalid config: STEP_TIMEOUT (%s) must be smaller than WORKFLOW_TIMEOUT (%s)", c.StepTimeout, c.WorkflowTimeout)
	}
	if c.StepMaxAttempts == 0 {
		return fmt.Errorf("invalid config: STEP_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("invalid config: retry intervals must be positive and ordered")
	}
	if c.RunSweepInterval <= 0 {
		return fmt.Errorf("invalid config: RUN_SWEEP_INTERVAL must be positive")
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("invalid config: OTEL_SAMPLE_RATIO must be within [0, 1]")
	}
	switch c.GeneratorMode {
	case GeneratorTemplate, GeneratorLLM:
	default:
		return fmt.Errorf("invalid config: unknown GENERATOR_MODE %q", c.GeneratorMode)
	}
	return nil
}
