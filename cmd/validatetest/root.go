package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"validatetest/internal/core/app"
	"validatetest/internal/core/config"
	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/language"
	"validatetest/internal/engine/parser"
	"validatetest/internal/shared/observability"
)

var version = "dev"

// cli carries the state every subcommand shares once the root command has
// loaded the configuration.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool

	cfg     *config.Config
	logger  *slog.Logger
	svc     *app.Service
	tracing *observability.TracerProvider
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "validatetest",
		Short: "Parse, check, highlight and format validatetest scenarios",
		Long: `validatetest works with GStreamer validate scenario files.

It parses them into concrete syntax trees, reports syntax errors,
highlights them (including embedded pipeline descriptions and any
registered tree-sitter language), runs tree queries, and formats them.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd.Context())
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultFile, "config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newParseCmd(c),
		newCheckCmd(c),
		newHighlightCmd(c),
		newQueryCmd(c),
		newFmtCmd(c),
		newWatchCmd(c),
		newLanguagesCmd(c),
		newVersionCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(c.configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	config.ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	level := cfg.LogLevel()
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)

	parser.MaxInputSize = cfg.Parser.MaxInputSize

	overrides, err := cfg.LanguageOverrides()
	if err != nil {
		return err
	}
	registry, err := language.Default(nil, overrides)
	if err != nil {
		return err
	}
	svc, err := app.NewService(app.Options{
		Registry: registry,
		Format:   cfg.FormatOptions(),
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.svc = svc

	tc := cfg.TracingConfig()
	tc.Writer = c.stderr
	tp, err := observability.NewTracerProvider(cmd.Context(), tc)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	c.tracing = tp
	c.logger.Debug("configuration loaded", "path", c.configPath, "languages", registry.Names(), "tracing", tp.Enabled())
	return nil
}

func (c *cli) teardown(ctx context.Context) error {
	if c.tracing == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return c.tracing.Shutdown(ctx)
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(c.stdout, "validatetest %s\n", version)
			for _, g := range []*grammar.Grammar{grammar.ValidateTest(), grammar.Pipeline()} {
				fmt.Fprintf(c.stdout, "  grammar %s %s\n", g.Name(), g.Version())
			}
			return nil
		},
	}
}

func newLanguagesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List registered languages and their extensions",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			registry := c.svc.Registry()
			for _, name := range registry.Names() {
				l, _ := registry.Lookup(name)
				exts := "-"
				if len(l.Extensions) > 0 {
					exts = fmt.Sprint(l.Extensions)
				}
				fmt.Fprintf(c.stdout, "%-14s %s\n", name, exts)
			}
			return nil
		},
	}
}
