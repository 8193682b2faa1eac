package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "timeaxis/internal/log"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands the new
// config to onChange until ctx is cancelled. The directory is watched so
// atomic replacements by Save are seen. Files that fail to load are logged
// and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					cfg, err := Load(abs)
					if err != nil {
						appLog.Error("config reload failed", err, "path", abs)
						return
					}
					appLog.Info("config reloaded", "path", abs)
					onChange(cfg)
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				appLog.Warn("config watch error", "err", err.Error())
			}
		}
	}()
	return nil
}
