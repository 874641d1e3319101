package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/logfields"
)

// ConfigWatcher monitors the config file and hands reloaded configs to the
// daemon. Listener addresses are fixed at startup; everything else (source,
// renderer, publish target) takes effect on the next run.
type ConfigWatcher struct {
	configPath   string
	onReload     func(*config.Config)
	watcher      *fsnotify.Watcher
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, onReload func(*config.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	return &ConfigWatcher{
		configPath:   absPath,
		onReload:     onReload,
		watcher:      watcher,
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second, // editors fire several events per save
	}, nil
}

// Start begins monitoring. The watcher stops when ctx is canceled.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	// Watch the parent directory: editors that write-then-rename replace the
	// inode, which breaks a watch on the file itself.
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", configDir, err)
	}

	slog.Info("Watching configuration file", logfields.Path(cw.configPath))

	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	defer cw.watcher.Close()
	configFile := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create):
				cw.triggerReload()
			case event.Op.Has(fsnotify.Remove):
				slog.Warn("Config file removed", logfields.Path(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default: // reload already queued
	}
}

func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.reloadChan:
			// Let the editor finish its burst of events before reading.
			select {
			case <-ctx.Done():
				return
			case <-time.After(cw.debounceTime):
			}

			cfg, err := config.Load(cw.configPath)
			if err != nil {
				slog.Error("Config reload failed, keeping previous config",
					logfields.Path(cw.configPath),
					logfields.Error(err))
				continue
			}

			slog.Info("Configuration reloaded", logfields.Path(cw.configPath))
			cw.onReload(cfg)
		}
	}
}
