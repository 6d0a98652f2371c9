package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.WorkflowTimeout != 10*time.Second || cfg.StepTimeout != 3*time.Second {
		t.Fatalf("unexpected timeouts: %s / %s", cfg.WorkflowTimeout, cfg.StepTimeout)
	}
	if cfg.StepMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.StepMaxAttempts)
	}
	if cfg.GeneratorMode != GeneratorTemplate {
		t.Fatalf("expected template generator, got %q", cfg.GeneratorMode)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKFLOW_TIMEOUT", "2s")
	t.Setenv("STEP_TIMEOUT", "500ms")
	t.Setenv("STEP_MAX_ATTEMPTS", "5")
	t.Setenv("GENERATOR_MODE", "llm")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkflowTimeout != 2*time.Second || cfg.StepTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected timeouts: %s / %s", cfg.WorkflowTimeout, cfg.StepTimeout)
	}
	if cfg.StepMaxAttempts != 5 || cfg.GeneratorMode != GeneratorLLM {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-an-int")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidateRejectsStepTimeoutAboveWorkflowTimeout(t *testing.T) {
	t.Setenv("WORKFLOW_TIMEOUT", "1s")
	t.Setenv("STEP_TIMEOUT", "1s")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsUnknownGenerator(t *testing.T) {
	t.Setenv("GENERATOR_MODE", "poetry")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsNonPositiveSweepInterval(t *testing.T) {
	t.Setenv("RUN_SWEEP_INTERVAL", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsSampleRatioOutOfRange(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATIO", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}
