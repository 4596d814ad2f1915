package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked with the freshly loaded configuration after the
// config file changes on disk.
type ReloadFunc func(*Config)

// Watcher watches the project config file and triggers reloads.
// Cached search results are sensitive to weight and TTL changes, so the
// engine registers a reload hook that clears its query cache.
type Watcher struct {
	dir      string
	debounce time.Duration
	onReload ReloadFunc
}

// NewWatcher creates a config watcher for the given project directory.
func NewWatcher(dir string, onReload ReloadFunc) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
	}
}

// Run watches until the context is cancelled. Editors replace files rather
// than writing in place, so the parent directory is watched and events are
// filtered by name and debounced.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ConfigFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", slog.String("error", err.Error()))

		case <-fire:
			cfg, err := Load(w.dir)
			if err != nil {
				slog.Warn("config reload skipped, file invalid",
					slog.String("error", err.Error()))
				continue
			}
			slog.Info("config reloaded", slog.String("path", ConfigPath(w.dir)))
			if w.onReload != nil {
				w.onReload(cfg)
			}
		}
	}
}
