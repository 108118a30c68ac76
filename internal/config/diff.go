package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; storage settings
// require a restart and are reported separately so callers can log a warning.
type ConfigDiff struct {
	EngineChanged   bool     // true if any pipeline tuning knob changed
	EngineFields    []string // yaml names of the changed engine fields
	LogLevelChanged bool
	NewLogLevel     LogLevel
	WorkersChanged  bool
	StorageChanged  bool // not hot-reloadable; restart required
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart, plus a flag
// for storage changes that are not.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	if old.Workers != new.Workers {
		d.WorkersChanged = true
	}

	d.EngineFields = diffEngine(&old.Engine, &new.Engine)
	d.EngineChanged = len(d.EngineFields) > 0

	if old.Storage != new.Storage {
		d.StorageChanged = true
	}

	return d
}

// diffEngine returns the yaml names of engine fields whose values differ.
func diffEngine(old, new *EngineConfig) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}

	add("threshold_hi", old.ThresholdHi != new.ThresholdHi)
	add("threshold_lo", old.ThresholdLo != new.ThresholdLo)
	add("min_runs", old.MinRuns != new.MinRuns)
	add("overlap_split_window_ms", old.OverlapSplitWindowMs != new.OverlapSplitWindowMs)
	add("overlap_min_intersection_ms", old.OverlapMinIntersectionMs != new.OverlapMinIntersectionMs)
	add("smoothing_ceiling_seconds", old.SmoothingCeilingSeconds != new.SmoothingCeilingSeconds)
	add("max_gap_seconds", old.MaxGapSeconds != new.MaxGapSeconds)
	add("max_merge_duration_seconds", old.MaxMergeDurationSeconds != new.MaxMergeDurationSeconds)
	add("target_min_chars", old.TargetMinChars != new.TargetMinChars)
	add("target_max_chars", old.TargetMaxChars != new.TargetMaxChars)
	add("always_merge_under_chars", old.AlwaysMergeUnderChars != new.AlwaysMergeUnderChars)
	add("sweep_under_chars", old.SweepUnderChars != new.SweepUnderChars)
	add("fuzzy_dedupe", old.FuzzyDedupe != new.FuzzyDedupe)
	add("fuzzy_dedupe_threshold", old.FuzzyDedupeThreshold != new.FuzzyDedupeThreshold)
	add("cache_max_age_days", old.CacheMaxAgeDays != new.CacheMaxAgeDays)
	add("refinement", old.Refinement != new.Refinement)

	return changed
}
