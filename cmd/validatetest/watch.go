package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"validatetest/internal/core/config"
	"validatetest/internal/core/watcher"
)

func newWatchCmd(c *cli) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Recheck files as they change",
		Long: `Watch directories and recheck changed files.

Paths default to watch.paths from the config. Every file is checked once
at startup; after that only changed files are reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = c.cfg.Observability.MetricsAddr
			}
			paths := args
			if len(paths) == 0 {
				paths = c.cfg.Watch.Paths
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.watch(ctx, paths, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func (c *cli) watch(ctx context.Context, paths []string, metricsAddr string) error {
	cfg := c.cfg
	rechecker := watcher.NewRechecker(c.svc, cfg.Watch.MaxRechecksPerSecond, cfg.Watch.RecheckBurst, c.report)

	batches := make(chan watcher.Batch, 16)
	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Watch.Exclude.Dirs, cfg.Watch.Exclude.Files, func(b watcher.Batch) {
		select {
		case batches <- b:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer w.Close()
	w.SetExtensions(c.svc.Registry().Extensions())

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		c.logger.Info("serving metrics", "addr", metricsAddr)
	}

	if _, err := os.Stat(c.configPath); err == nil {
		cw := config.NewWatcher(c.configPath, func(next *config.Config) {
			c.svc.SetFormatOptions(next.FormatOptions())
			w.SetDebounce(next.Watch.Debounce)
			c.logger.Info("config reloaded", "path", c.configPath)
		})
		if err := cw.Start(ctx); err != nil {
			c.logger.Warn("config watch disabled", "error", err)
		} else {
			defer cw.Stop()
		}
	}

	files, err := w.Files(paths)
	if err != nil {
		return err
	}
	rechecker.Handle(ctx, watcher.Batch{ID: "initial", Paths: files})

	if err := w.Watch(paths); err != nil {
		return err
	}
	c.logger.Info("watching", "paths", paths, "files", len(files))

	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-batches:
			rechecker.Handle(ctx, b)
		}
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// report prints one recheck result. Unchanged files are quiet.
func (c *cli) report(res watcher.Result) {
	switch res.Outcome {
	case watcher.OutcomeClean:
		fmt.Fprintf(c.stdout, "ok %s\n", res.Path)
	case watcher.OutcomeErrors:
		printDiagnostics(c, res.Path, res.Document)
	case watcher.OutcomeFailed:
		fmt.Fprintf(c.stdout, "%s: %v\n", res.Path, res.Err)
	}
}
