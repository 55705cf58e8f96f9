package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"

	"validatetest/internal/engine/format"
	"validatetest/internal/engine/parser"
	"validatetest/internal/shared/observability"
)

// Load reads the TOML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, err
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		cfg.dir = filepath.Dir(path)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Format.IndentWidth == 0 {
		cfg.Format.IndentWidth = format.DefaultIndentWidth
	}
	if cfg.Format.LineLength == 0 {
		cfg.Format.LineLength = format.DefaultMaxLineLength
	}

	if cfg.Parser.MaxInputSize == 0 {
		cfg.Parser.MaxInputSize = parser.DefaultMaxInputSize
	}

	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"."}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.MaxRechecksPerSecond == 0 {
		cfg.Watch.MaxRechecksPerSecond = 20
	}
	if cfg.Watch.RecheckBurst == 0 {
		cfg.Watch.RecheckBurst = 10
	}
	if cfg.Watch.Exclude.Dirs == nil {
		cfg.Watch.Exclude.Dirs = []string{".git", "node_modules", "build"}
	}

	if strings.TrimSpace(cfg.Observability.Tracing.Exporter) == "" {
		cfg.Observability.Tracing.Exporter = observability.ExporterNone
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 1.0
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks every section, returning the first problem found.
func (c *Config) Validate() error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateFormat,
		validateParser,
		validateLanguages,
		validateWatch,
		validateObservability,
		validateLog,
	} {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateFormat(cfg *Config) error {
	if cfg.Format.IndentWidth < 1 || cfg.Format.IndentWidth > 16 {
		return fmt.Errorf("format.indent_width must be between 1 and 16, got %d", cfg.Format.IndentWidth)
	}
	if cfg.Format.LineLength < 20 {
		return fmt.Errorf("format.line_length must be >= 20, got %d", cfg.Format.LineLength)
	}
	for i, name := range cfg.Format.AlwaysMultiline {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("format.always_multiline[%d] must not be empty", i)
		}
	}
	return nil
}

func validateParser(cfg *Config) error {
	if cfg.Parser.MaxInputSize < 0 {
		return fmt.Errorf("parser.max_input_size must be positive, got %d", cfg.Parser.MaxInputSize)
	}
	return nil
}

func validateLanguages(cfg *Config) error {
	for name, l := range cfg.Languages {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("languages: name must not be empty")
		}
		for i, ext := range l.Extensions {
			if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
				return fmt.Errorf("languages.%s.extensions[%d] must not be empty", name, i)
			}
		}
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	if cfg.Watch.MaxRechecksPerSecond < 0 {
		return fmt.Errorf("watch.max_rechecks_per_second must not be negative")
	}
	if cfg.Watch.RecheckBurst < 1 {
		return fmt.Errorf("watch.recheck_burst must be >= 1, got %d", cfg.Watch.RecheckBurst)
	}
	for _, list := range []struct {
		key      string
		patterns []string
	}{
		{"watch.exclude.dirs", cfg.Watch.Exclude.Dirs},
		{"watch.exclude.files", cfg.Watch.Exclude.Files},
	} {
		for _, p := range list.patterns {
			if _, err := glob.Compile(p); err != nil {
				return fmt.Errorf("%s: invalid pattern %q: %w", list.key, p, err)
			}
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	switch cfg.Observability.Tracing.Exporter {
	case observability.ExporterNone, observability.ExporterStdout, observability.ExporterOTLP:
	default:
		return fmt.Errorf("observability.tracing.exporter must be one of: none, stdout, otlp")
	}
	if r := cfg.Observability.Tracing.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1, got %g", r)
	}
	return nil
}

func validateLog(cfg *Config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
