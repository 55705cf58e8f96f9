package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes. The callback only
// sees configurations that load, validate and differ from the previous one.
type Watcher struct {
	path     string
	callback func(*Config)
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	current *Config
}

func NewWatcher(path string, callback func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		callback: callback,
		stop:     make(chan struct{}),
	}
}

// Start watches the directory of the file so atomic saves that replace it
// are seen.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	if cfg, err := w.load(); err == nil {
		w.current = cfg
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer fw.Close()

		slog.Debug("watching config file", "path", w.path)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(reloadDebounce, w.reload)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the watch and waits for the loop to exit. It is safe to call twice.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		slog.Warn("failed to reload configuration", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := changedSections(w.current, cfg)
	if len(changed) == 0 {
		slog.Debug("configuration unchanged", "path", w.path)
		return
	}
	w.current = cfg
	slog.Info("configuration reloaded", "path", w.path, "sections", changed)
	if w.callback != nil {
		w.callback(cfg)
	}
}

// changedSections names the top-level sections that differ between a and b.
// A nil a differs in every section.
func changedSections(a, b *Config) []string {
	all := a == nil
	if all {
		a = &Config{}
	}
	var out []string
	for _, s := range []struct {
		name string
		x, y any
	}{
		{"version", a.Version, b.Version},
		{"format", a.Format, b.Format},
		{"parser", a.Parser, b.Parser},
		{"languages", a.Languages, b.Languages},
		{"watch", a.Watch, b.Watch},
		{"observability", a.Observability, b.Observability},
		{"log", a.Log, b.Log},
	} {
		if all || !reflect.DeepEqual(s.x, s.y) {
			out = append(out, s.name)
		}
	}
	return out
}
