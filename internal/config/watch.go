package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/muselink/muselink/internal/logger"
)

// WatchFile reloads the manager's configuration whenever the config file
// changes on disk. Editors replace files rather than writing in place, so the
// parent directory is watched and events are debounced. Blocks until ctx is
// cancelled; callers run it in a goroutine.
func (m *Manager) WatchFile(ctx context.Context) error {
	path := m.ConfigPath()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var reloadTimer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce bursts of events from a single save.
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		case <-reload:
			if err := m.LoadConfig(path); err != nil {
				logger.Error("failed to reload configuration", "path", path, "error", err)
				continue
			}
			logger.Info("configuration reloaded", "path", path)
		}
	}
}
