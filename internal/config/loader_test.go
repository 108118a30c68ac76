package config_test

import (
	"strings"
	"testing"

	"github.com/vocalith/vocalith/internal/config"
)

func TestValidate_ThresholdOrdering(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  threshold_hi: 0.6
  threshold_lo: 0.7
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for threshold_lo above threshold_hi, got nil")
	}
	if !strings.Contains(err.Error(), "threshold_lo") {
		t.Errorf("error should mention threshold_lo, got: %v", err)
	}
}

func TestValidate_MinRuns(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  min_runs: -3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative min_runs, got nil")
	}
	if !strings.Contains(err.Error(), "min_runs") {
		t.Errorf("error should mention min_runs, got: %v", err)
	}
}

func TestValidate_CharTargetCoherence(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  target_min_chars: 1200
  target_max_chars: 400
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for target_max_chars below target_min_chars, got nil")
	}
	if !strings.Contains(err.Error(), "target_max_chars") {
		t.Errorf("error should mention target_max_chars, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
logging:
  level: loud
engine:
  threshold_hi: 1.5
  min_runs: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "logging.level") {
		t.Errorf("error should mention logging.level, got: %v", err)
	}
	if !strings.Contains(errStr, "threshold_hi") {
		t.Errorf("error should mention threshold_hi, got: %v", err)
	}
	if !strings.Contains(errStr, "min_runs") {
		t.Errorf("error should mention min_runs, got: %v", err)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("engine:\n  min_runs: 3\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MinRuns != 3 {
		t.Errorf("MinRuns = %d, want explicit 3", cfg.Engine.MinRuns)
	}
	if cfg.Engine.ThresholdHi != 0.75 {
		t.Errorf("ThresholdHi = %v, want default 0.75", cfg.Engine.ThresholdHi)
	}
	if cfg.Engine.ThresholdLo != 0.68 {
		t.Errorf("ThresholdLo = %v, want default 0.68", cfg.Engine.ThresholdLo)
	}
	if cfg.Engine.TargetMaxChars != 1200 {
		t.Errorf("TargetMaxChars = %v, want default 1200", cfg.Engine.TargetMaxChars)
	}
	if cfg.Logging.Level != config.LogInfo {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.Engine.Refinement.Primary.MinAvgLogProb != -0.8 {
		t.Errorf("Refinement.Primary.MinAvgLogProb = %v, want default -0.8", cfg.Engine.Refinement.Primary.MinAvgLogProb)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("engine:\n  mystery_knob: 7\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_StorageDimensionsRequiredWithDSN(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/vocalith"
  voice_embedding_dimensions: -1
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatalf("expected error for negative dimensions, got config %+v", cfg)
	}
	if !strings.Contains(err.Error(), "voice_embedding_dimensions") {
		t.Errorf("error should mention voice_embedding_dimensions, got: %v", err)
	}
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}
