package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

const defaultReloadDebounce = 500 * time.Millisecond

// FileWatcher reloads a ConfigManager when its backing file changes on disk.
// The parent directory is watched rather than the file itself so editors that
// replace the file with a rename are still picked up.
type FileWatcher struct {
	manager  *ConfigManager
	path     string
	logger   hclog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	timerMu sync.Mutex
	timer   *time.Timer
	wg      sync.WaitGroup
}

// NewFileWatcher creates a watcher for the manager's current config path.
func NewFileWatcher(manager *ConfigManager, logger hclog.Logger) (*FileWatcher, error) {
	path := manager.ConfigPath()
	if path == "" {
		return nil, fmt.Errorf("no config path set")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		manager:  manager,
		path:     filepath.Clean(path),
		logger:   logger.Named("config-watcher"),
		debounce: defaultReloadDebounce,
		watcher:  w,
	}, nil
}

// Start begins watching until ctx is cancelled.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watcher.Add(filepath.Dir(fw.path)); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	fw.wg.Add(1)
	go fw.loop(ctx)

	fw.logger.Info("watching configuration file", "path", fw.path)
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (fw *FileWatcher) Stop() {
	fw.watcher.Close()
	fw.timerMu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timerMu.Unlock()
	fw.wg.Wait()
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				fw.scheduleReload()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) scheduleReload() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		if err := fw.manager.LoadConfig(fw.path); err != nil {
			// Keep serving with the previous configuration.
			fw.logger.Error("config reload failed", "path", fw.path, "error", err)
			return
		}
		fw.logger.Info("configuration reloaded", "path", fw.path)
	})
}
