package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/captrail/captrail/internal/noise"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
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

// applyDefaults fills the few fields that need a concrete value before the
// server starts. Tunables with downstream defaults (sweep interval, chunk
// cadence, matcher thresholds) stay zero here and are resolved where used.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8440"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9091"
	}
}

// ApplyEnv overlays secrets from the process environment onto cfg. Values
// already present in the YAML are overwritten when the corresponding
// CAPTRAIL_* variable is set, so keys never have to live on disk next to the
// config file. Call after [Load] and, if a .env file is in play, after
// godotenv has populated the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("CAPTRAIL_LLM_API_KEY"); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv("CAPTRAIL_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Providers.Embeddings.APIKey = v
	}
	if v := os.Getenv("CAPTRAIL_POSTGRES_DSN"); v != "" {
		cfg.Archive.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Capture
	if cfg.Capture.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.sweep_interval %s must not be negative", cfg.Capture.SweepInterval.Std()))
	}
	if cfg.Capture.FinalizeTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture.finalize_timeout %s must not be negative", cfg.Capture.FinalizeTimeout.Std()))
	}
	if cfg.Capture.DebounceWindow < 0 {
		errs = append(errs, fmt.Errorf("capture.debounce_window %s must not be negative", cfg.Capture.DebounceWindow.Std()))
	}
	if cfg.Capture.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("capture.max_sessions %d must not be negative", cfg.Capture.MaxSessions))
	}

	// Noise patterns
	for i, p := range cfg.Noise.Patterns {
		prefix := fmt.Sprintf("noise.patterns[%d]", i)
		if p.Value == "" {
			errs = append(errs, fmt.Errorf("%s.value is required", prefix))
		}
		if !p.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: exact, substring, regexp", prefix, p.Kind))
			continue
		}
		if p.Kind == noise.KindRegexp && p.Value != "" {
			if _, err := regexp.Compile(p.Value); err != nil {
				errs = append(errs, fmt.Errorf("%s.value does not compile: %w", prefix, err))
			}
		}
	}

	// Chunking
	if cfg.Chunking.Interval < 0 {
		errs = append(errs, fmt.Errorf("chunking.interval %s must not be negative", cfg.Chunking.Interval.Std()))
	}
	if cfg.Chunking.MinChars < 0 {
		errs = append(errs, fmt.Errorf("chunking.min_chars %d must not be negative", cfg.Chunking.MinChars))
	}

	// Speakers
	if t := cfg.Speakers.PhoneticThreshold; t != 0 && (t < 0 || t > 1) {
		errs = append(errs, fmt.Errorf("speakers.phonetic_threshold %.2f is out of range (0, 1]", t))
	}
	if t := cfg.Speakers.FuzzyThreshold; t != 0 && (t < 0 || t > 1) {
		errs = append(errs, fmt.Errorf("speakers.fuzzy_threshold %.2f is out of range (0, 1]", t))
	}

	// Archive
	if cfg.Archive.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("archive.embedding_dimensions %d must not be negative", cfg.Archive.EmbeddingDimensions))
	}

	// Provider name validation; unknown names are warnings, not errors.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; sessions will finish without summaries")
	}

	// Embeddings and archive dimensions go together.
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but archive.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Archive.PostgresDSN == "" && cfg.Providers.Embeddings.Name != "" {
		slog.Warn("providers.embeddings is configured but archive.postgres_dsn is empty; semantic search will not be available")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
