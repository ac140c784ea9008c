package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":     {"gemini-live"},
	"analysis": {"openai", "anthropic", "gemini", "ollama"},
}

// envOverrides are environment variables layered on top of the file config.
// Secrets belong here rather than in the YAML file.
type envOverrides struct {
	ListenAddr   string `env:"VANI_ADDR"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	DatabaseURL  string `env:"DATABASE_URL"`
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. An empty path skips the file
// and builds the config from defaults and the environment alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Environment overrides are not applied. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Set variables win over
// file values.
func ApplyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	if ov.ListenAddr != "" {
		cfg.Server.ListenAddr = ov.ListenAddr
	}
	if ov.GeminiAPIKey != "" {
		cfg.Live.APIKey = ov.GeminiAPIKey
	}
	if ov.OpenAIAPIKey != "" && cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = ov.OpenAIAPIKey
	}
	if ov.DatabaseURL != "" {
		cfg.Storage.PostgresDSN = ov.DatabaseURL
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Unknown provider names only warn; they may be registered at runtime.
	validateProviderName("live", cfg.Live.Provider)
	validateProviderName("analysis", cfg.Analysis.Provider)

	if cfg.Live.Provider == "" {
		errs = append(errs, errors.New("live.provider is required"))
	}
	if cfg.Live.APIKey == "" {
		slog.Warn("live.api_key is empty; sessions will fail to connect unless GEMINI_API_KEY is set")
	}
	if cfg.Analysis.Provider == "" {
		slog.Warn("analysis.provider is empty; sessions will finish without a report")
	}

	// Audio gate
	if cfg.Audio.GateThreshold < 0 || cfg.Audio.GateThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.gate_threshold %.4f is out of range [0, 1)", cfg.Audio.GateThreshold))
	}
	if cfg.Audio.Gain < 0 {
		errs = append(errs, fmt.Errorf("audio.gain %.2f must not be negative", cfg.Audio.Gain))
	}

	// Timers
	if cfg.Session.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.max_duration_seconds %d must not be negative", cfg.Session.MaxDurationSeconds))
	}
	if cfg.Session.SilenceTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.silence_timeout_seconds %d must not be negative", cfg.Session.SilenceTimeoutSeconds))
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; session records are kept in memory only")
	}

	// Inline agent profiles, with duplicate ID detection.
	idsSeen := make(map[string]int, len(cfg.Agents))
	for i, p := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if p.ID == "" {
			continue
		}
		if prev, ok := idsSeen[p.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of agents[%d]", prefix, p.ID, prev))
		}
		idsSeen[p.ID] = i
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
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
