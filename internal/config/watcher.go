package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/abelbrown/earlywire/internal/logging"
)

// Watch reloads the config file whenever it changes and hands the merged
// result to onChange. The watch runs until the context is cancelled.
//
// The parent directory is watched rather than the file itself: editors
// and config-management tools typically replace the file, which would
// otherwise drop the watch after the first change.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logging.Warn("config reload failed, keeping previous", "path", path, "error", err)
					continue
				}
				logging.Info("config reloaded", "path", path)
				onChange(cfg)
			case err := <-watcher.Errors:
				logging.Warn("config watcher error", "error", err)
			}
		}
	}()

	return watcher.Add(filepath.Dir(target))
}
