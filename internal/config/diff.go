package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	// LogLevelChanged reports a new server.log_level; NewLogLevel carries it.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// NoiseChanged reports a different effective chrome pattern set. The
	// classifier can be reloaded in place; running sessions pick the new
	// patterns up on their next snapshot.
	NoiseChanged bool

	// ChunkingChanged reports new chunk cadence or minimum size. Applies to
	// sessions started after the reload; running chunkers keep their timers.
	ChunkingChanged bool

	// SpeakersChanged reports new unifier thresholds. Applies to sessions
	// started after the reload.
	SpeakersChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.NoiseChanged || d.ChunkingChanged || d.SpeakersChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Noise.ReplaceDefaults != new.Noise.ReplaceDefaults ||
		!slices.Equal(old.Noise.Patterns, new.Noise.Patterns) {
		d.NoiseChanged = true
	}

	if old.Chunking != new.Chunking {
		d.ChunkingChanged = true
	}

	if old.Speakers != new.Speakers {
		d.SpeakersChanged = true
	}

	return d
}
