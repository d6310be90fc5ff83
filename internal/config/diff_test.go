package config_test

import (
	"testing"

	"github.com/captrail/captrail/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Noise: config.NoiseConfig{
			Patterns: []config.PatternConfig{{Kind: "exact", Value: "You are muted"}},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Error("expected no changes for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.NoiseChanged {
		t.Error("expected NoiseChanged=false")
	}
}

func TestDiff_PatternAdded(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Noise: config.NoiseConfig{
			Patterns: []config.PatternConfig{{Kind: "exact", Value: "You are muted"}},
		},
	}
	new := &config.Config{
		Noise: config.NoiseConfig{
			Patterns: []config.PatternConfig{
				{Kind: "exact", Value: "You are muted"},
				{Kind: "substring", Value: "is presenting"},
			},
		},
	}

	d := config.Diff(old, new)
	if !d.NoiseChanged {
		t.Error("expected NoiseChanged=true when a pattern is added")
	}
}

func TestDiff_PatternValueChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Noise: config.NoiseConfig{
			Patterns: []config.PatternConfig{{Kind: "regexp", Value: "^Joining"}},
		},
	}
	new := &config.Config{
		Noise: config.NoiseConfig{
			Patterns: []config.PatternConfig{{Kind: "regexp", Value: "^Leaving"}},
		},
	}

	d := config.Diff(old, new)
	if !d.NoiseChanged {
		t.Error("expected NoiseChanged=true when a pattern value changes")
	}
}

func TestDiff_ReplaceDefaultsToggled(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{Noise: config.NoiseConfig{ReplaceDefaults: true}}

	d := config.Diff(old, new)
	if !d.NoiseChanged {
		t.Error("expected NoiseChanged=true when replace_defaults toggles")
	}
}

func TestDiff_ChunkingChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Chunking: config.ChunkingConfig{MinChars: 500}}
	new := &config.Config{Chunking: config.ChunkingConfig{MinChars: 800}}

	d := config.Diff(old, new)
	if !d.ChunkingChanged {
		t.Error("expected ChunkingChanged=true")
	}
	if d.SpeakersChanged {
		t.Error("expected SpeakersChanged=false")
	}
}

func TestDiff_SpeakersChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Speakers: config.SpeakersConfig{FuzzyThreshold: 0.85}}
	new := &config.Config{Speakers: config.SpeakersConfig{FuzzyThreshold: 0.90}}

	d := config.Diff(old, new)
	if !d.SpeakersChanged {
		t.Error("expected SpeakersChanged=true")
	}
	if !d.Any() {
		t.Error("expected Any()=true")
	}
}
