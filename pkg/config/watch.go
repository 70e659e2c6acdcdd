package config

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/iop-labs/profiled/internal/logger"
)

// WatchLogLevel watches the config file and applies logging.level changes
// at runtime. Only the log level is hot-reloaded; everything else requires
// a restart. Returns a stop function; a missing or unwatchable file
// degrades to a no-op.
func WatchLogLevel(ctx context.Context, configPath string) (stop func()) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("Config watcher unavailable", "error", err)
		return func() {}
	}
	if err := watcher.Add(configPath); err != nil {
		logger.Debug("Config file not watchable", "path", configPath, "error", err)
		_ = watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Editors replace files with rename+create bursts; debounce them.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(200 * time.Millisecond)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("Config watcher error", "error", err)
			case <-pending:
				pending = nil
				reloadLogLevel(configPath)
				// Re-add after rename-style replacement.
				_ = watcher.Add(configPath)
			}
		}
	}()

	return func() {
		_ = watcher.Close()
		<-done
	}
}

// reloadLogLevel reads only logging.level from the file and applies it.
func reloadLogLevel(configPath string) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		logger.Debug("Config reload failed", "path", configPath, "error", err)
		return
	}

	level := strings.ToUpper(v.GetString("logging.level"))
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
		logger.SetLevel(level)
		logger.Info("Log level updated from config file", "level", level)
	case "":
	default:
		logger.Warn("Ignoring invalid log level in config file", "level", level)
	}
}
