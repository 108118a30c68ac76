package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields with tuned
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills every zero-valued knob with the tuned default.
// An explicit zero for FuzzyDedupe or an empty DSN is a valid "off" setting,
// so those are left alone.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Storage.VoiceEmbeddingDimensions == 0 {
		cfg.Storage.VoiceEmbeddingDimensions = def.Storage.VoiceEmbeddingDimensions
	}
	if cfg.Storage.TextEmbeddingDimensions == 0 {
		cfg.Storage.TextEmbeddingDimensions = def.Storage.TextEmbeddingDimensions
	}

	e := &cfg.Engine
	de := def.Engine
	if e.ThresholdHi == 0 {
		e.ThresholdHi = de.ThresholdHi
	}
	if e.ThresholdLo == 0 {
		e.ThresholdLo = de.ThresholdLo
	}
	if e.MinRuns == 0 {
		e.MinRuns = de.MinRuns
	}
	if e.OverlapSplitWindowMs == 0 {
		e.OverlapSplitWindowMs = de.OverlapSplitWindowMs
	}
	if e.OverlapMinIntersectionMs == 0 {
		e.OverlapMinIntersectionMs = de.OverlapMinIntersectionMs
	}
	if e.SmoothingCeilingSeconds == 0 {
		e.SmoothingCeilingSeconds = de.SmoothingCeilingSeconds
	}
	if e.MaxGapSeconds == 0 {
		e.MaxGapSeconds = de.MaxGapSeconds
	}
	if e.MaxMergeDurationSeconds == 0 {
		e.MaxMergeDurationSeconds = de.MaxMergeDurationSeconds
	}
	if e.TargetMinChars == 0 {
		e.TargetMinChars = de.TargetMinChars
	}
	if e.TargetMaxChars == 0 {
		e.TargetMaxChars = de.TargetMaxChars
	}
	if e.AlwaysMergeUnderChars == 0 {
		e.AlwaysMergeUnderChars = de.AlwaysMergeUnderChars
	}
	if e.SweepUnderChars == 0 {
		e.SweepUnderChars = de.SweepUnderChars
	}
	if e.FuzzyDedupeThreshold == 0 {
		e.FuzzyDedupeThreshold = de.FuzzyDedupeThreshold
	}
	if e.CacheMaxAgeDays == 0 {
		e.CacheMaxAgeDays = de.CacheMaxAgeDays
	}
	if e.Refinement.Primary == (SpeakerThresholds{}) {
		e.Refinement.Primary = de.Refinement.Primary
	}
	if e.Refinement.Guest == (SpeakerThresholds{}) {
		e.Refinement.Guest = de.Refinement.Guest
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	e := cfg.Engine
	if e.ThresholdHi <= 0 || e.ThresholdHi > 1 {
		errs = append(errs, fmt.Errorf("engine.threshold_hi %.3f is out of range (0, 1]", e.ThresholdHi))
	}
	if e.ThresholdLo <= 0 || e.ThresholdLo > 1 {
		errs = append(errs, fmt.Errorf("engine.threshold_lo %.3f is out of range (0, 1]", e.ThresholdLo))
	}
	if e.ThresholdLo >= e.ThresholdHi {
		errs = append(errs, fmt.Errorf("engine.threshold_lo %.3f must be strictly below engine.threshold_hi %.3f", e.ThresholdLo, e.ThresholdHi))
	}
	if e.MinRuns < 1 {
		errs = append(errs, fmt.Errorf("engine.min_runs %d must be at least 1", e.MinRuns))
	}
	if e.OverlapSplitWindowMs <= 0 {
		errs = append(errs, fmt.Errorf("engine.overlap_split_window_ms %d must be positive", e.OverlapSplitWindowMs))
	}
	if e.OverlapMinIntersectionMs <= 0 {
		errs = append(errs, fmt.Errorf("engine.overlap_min_intersection_ms %d must be positive", e.OverlapMinIntersectionMs))
	}
	if e.SmoothingCeilingSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.smoothing_ceiling_seconds %.1f must be positive", e.SmoothingCeilingSeconds))
	}
	if e.MaxGapSeconds < 0 {
		errs = append(errs, fmt.Errorf("engine.max_gap_seconds %.1f must not be negative", e.MaxGapSeconds))
	}
	if e.MaxMergeDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_merge_duration_seconds %.1f must be positive", e.MaxMergeDurationSeconds))
	}
	if e.TargetMinChars <= 0 {
		errs = append(errs, fmt.Errorf("engine.target_min_chars %d must be positive", e.TargetMinChars))
	}
	if e.TargetMaxChars <= e.TargetMinChars {
		errs = append(errs, fmt.Errorf("engine.target_max_chars %d must exceed engine.target_min_chars %d", e.TargetMaxChars, e.TargetMinChars))
	}
	if e.AlwaysMergeUnderChars < 0 {
		errs = append(errs, fmt.Errorf("engine.always_merge_under_chars %d must not be negative", e.AlwaysMergeUnderChars))
	}
	if e.SweepUnderChars < 0 {
		errs = append(errs, fmt.Errorf("engine.sweep_under_chars %d must not be negative", e.SweepUnderChars))
	}
	if e.FuzzyDedupe && (e.FuzzyDedupeThreshold <= 0 || e.FuzzyDedupeThreshold > 1) {
		errs = append(errs, fmt.Errorf("engine.fuzzy_dedupe_threshold %.3f is out of range (0, 1]", e.FuzzyDedupeThreshold))
	}
	if e.CacheMaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("engine.cache_max_age_days %d must not be negative", e.CacheMaxAgeDays))
	}
	if e.Refinement.Primary.MaxCompressionRatio <= 0 {
		errs = append(errs, fmt.Errorf("engine.refinement.primary.max_compression_ratio %.2f must be positive", e.Refinement.Primary.MaxCompressionRatio))
	}
	if e.Refinement.Guest.MaxCompressionRatio <= 0 {
		errs = append(errs, fmt.Errorf("engine.refinement.guest.max_compression_ratio %.2f must be positive", e.Refinement.Guest.MaxCompressionRatio))
	}
	if e.Refinement.Guest.MinAvgLogProb > e.Refinement.Primary.MinAvgLogProb {
		slog.Warn("guest refinement thresholds are stricter than primary; flagged counts may be inflated",
			"primary_min_avg_logprob", e.Refinement.Primary.MinAvgLogProb,
			"guest_min_avg_logprob", e.Refinement.Guest.MinAvgLogProb,
		)
	}

	if cfg.Storage.PostgresDSN != "" {
		if cfg.Storage.VoiceEmbeddingDimensions <= 0 {
			errs = append(errs, fmt.Errorf("storage.voice_embedding_dimensions %d must be positive when storage.postgres_dsn is set", cfg.Storage.VoiceEmbeddingDimensions))
		}
		if cfg.Storage.TextEmbeddingDimensions <= 0 {
			errs = append(errs, fmt.Errorf("storage.text_embedding_dimensions %d must be positive when storage.postgres_dsn is set", cfg.Storage.TextEmbeddingDimensions))
		}
	} else {
		slog.Warn("storage.postgres_dsn is empty; embedding cache and segment index are disabled")
	}

	return errors.Join(errs...)
}
