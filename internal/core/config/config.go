package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"validatetest/internal/engine/format"
	"validatetest/internal/engine/language"
	"validatetest/internal/shared/observability"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "validatetest.toml"

type Config struct {
	Version       int                 `toml:"version"`
	Format        Format              `toml:"format"`
	Parser        Parser              `toml:"parser"`
	Languages     map[string]Language `toml:"languages"`
	Watch         Watch               `toml:"watch"`
	Observability Observability       `toml:"observability"`
	Log           Log                 `toml:"log"`

	// dir resolves relative query paths.
	dir string
}

type Format struct {
	IndentWidth     int      `toml:"indent_width"`
	LineLength      int      `toml:"line_length"`
	AlwaysMultiline []string `toml:"always_multiline"`
}

type Parser struct {
	MaxInputSize int `toml:"max_input_size"`
}

// Language overrides a registered language. Highlights and Injections are
// paths to query files, relative to the config file.
type Language struct {
	Enabled    *bool    `toml:"enabled"`
	Extensions []string `toml:"extensions"`
	Highlights string   `toml:"highlights"`
	Injections string   `toml:"injections"`
}

type Watch struct {
	Paths                []string      `toml:"paths"`
	Debounce             time.Duration `toml:"debounce"`
	MaxRechecksPerSecond float64       `toml:"max_rechecks_per_second"`
	RecheckBurst         int           `toml:"recheck_burst"`
	Exclude              Exclude       `toml:"exclude"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Observability struct {
	MetricsAddr string  `toml:"metrics_addr"`
	Tracing     Tracing `toml:"tracing"`
}

type Tracing struct {
	Exporter     string  `toml:"exporter"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	SampleRate   float64 `toml:"sample_rate"`
}

type Log struct {
	Level string `toml:"level"`
}

// FormatOptions returns the formatter options of the [format] section.
func (c *Config) FormatOptions() format.Options {
	return format.Options{
		IndentWidth:     c.Format.IndentWidth,
		MaxLineLength:   c.Format.LineLength,
		AlwaysMultiline: c.Format.AlwaysMultiline,
	}
}

func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Exporter:     c.Observability.Tracing.Exporter,
		OTLPEndpoint: c.Observability.Tracing.OTLPEndpoint,
		SampleRate:   c.Observability.Tracing.SampleRate,
	}
}

// LogLevel maps log.level to a slog level. Unknown names give info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LanguageOverrides reads the configured query files and returns registry
// overrides keyed by language name.
func (c *Config) LanguageOverrides() (map[string]language.Override, error) {
	out := make(map[string]language.Override, len(c.Languages))
	for name, l := range c.Languages {
		o := language.Override{Enabled: l.Enabled, Extensions: l.Extensions}
		var err error
		if o.Highlights, err = c.readQuery(l.Highlights); err != nil {
			return nil, fmt.Errorf("languages.%s.highlights: %w", name, err)
		}
		if o.Injections, err = c.readQuery(l.Injections); err != nil {
			return nil, fmt.Errorf("languages.%s.injections: %w", name, err)
		}
		out[name] = o
	}
	return out, nil
}

func (c *Config) readQuery(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	if !filepath.IsAbs(p) && c.dir != "" {
		p = filepath.Join(c.dir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
