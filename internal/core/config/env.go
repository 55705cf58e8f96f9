package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: VALIDATETEST_[SECTION]_[KEY] (e.g., VALIDATETEST_FORMAT_LINE_LENGTH).
func ApplyEnvOverrides(cfg *Config) {
	// Format
	setEnvInt(&cfg.Format.IndentWidth, "VALIDATETEST_FORMAT_INDENT_WIDTH")
	setEnvInt(&cfg.Format.LineLength, "VALIDATETEST_FORMAT_LINE_LENGTH")
	setEnvList(&cfg.Format.AlwaysMultiline, "VALIDATETEST_FORMAT_ALWAYS_MULTILINE")

	// Parser
	setEnvInt(&cfg.Parser.MaxInputSize, "VALIDATETEST_PARSER_MAX_INPUT_SIZE")

	// Watch
	setEnvList(&cfg.Watch.Paths, "VALIDATETEST_WATCH_PATHS")
	setEnvDuration(&cfg.Watch.Debounce, "VALIDATETEST_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.MaxRechecksPerSecond, "VALIDATETEST_WATCH_MAX_RECHECKS_PER_SECOND")
	setEnvInt(&cfg.Watch.RecheckBurst, "VALIDATETEST_WATCH_RECHECK_BURST")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "VALIDATETEST_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.Tracing.Exporter, "VALIDATETEST_OBSERVABILITY_TRACING_EXPORTER")
	setEnvString(&cfg.Observability.Tracing.OTLPEndpoint, "VALIDATETEST_OBSERVABILITY_TRACING_OTLP_ENDPOINT")
	setEnvFloat64(&cfg.Observability.Tracing.SampleRate, "VALIDATETEST_OBSERVABILITY_TRACING_SAMPLE_RATE")

	// Log
	setEnvString(&cfg.Log.Level, "VALIDATETEST_LOG_LEVEL")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		var out []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*target = out
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
