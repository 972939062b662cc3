package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads baseDir/config.json whenever it changes and passes the new
// config to onChange. Invalid files are logged and skipped. The directory
// is watched rather than the file so atomic renames are seen. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, baseDir string, logger *slog.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(baseDir); err != nil {
		return fmt.Errorf("watch %s: %w", baseDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(baseDir)
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded")
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
