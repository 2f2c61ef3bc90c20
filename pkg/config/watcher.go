package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration. Only settings that
// are safe to change at runtime (log level, CORS origins) should be applied.
type ReloadFunc func(*Config)

// ErrorFunc receives reload failures; the previous configuration stays active.
type ErrorFunc func(error)

// Watcher reloads the YAML config file when it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  ReloadFunc
	onError ErrorFunc
}

// NewWatcher watches the directory holding path. Editors and config-map
// mounts replace files through renames, which only a directory watch sees.
func NewWatcher(path string, onLoad ReloadFunc, onError ErrorFunc) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{path: abs, watcher: fw, onLoad: onLoad, onError: onError}, nil
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onError(fmt.Errorf("config watcher: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		w.onError(fmt.Errorf("reloaded configuration invalid: %w", err))
		return
	}
	w.onLoad(cfg)
}
