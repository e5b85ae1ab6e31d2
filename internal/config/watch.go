package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path string
	// realPath is path with symlinks resolved, empty while it does not
	// resolve. A change here means a symlink along the way was repointed.
	realPath string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path. The parent directory is watched rather
// than the file, and the file's symlink target is tracked, so a file
// replaced by rename and a Kubernetes config-map mount swapping its ..data
// symlink both trigger a reload.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	clean := filepath.Clean(path)
	if err := fw.Add(filepath.Dir(clean)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	return &Watcher{
		path:     clean,
		realPath: resolve(clean),
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Run blocks until ctx is cancelled, calling onChange with every config that
// loads and validates after a change. Invalid configs are logged and
// skipped, so the caller keeps its last good config.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer func() { _ = w.watcher.Close() }()

	w.logger.Info("watching config file", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.changed(event) {
				w.reload(onChange)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// changed reports whether event should trigger a reload: a write to or
// creation of the file itself, or any event in its directory after which the
// file resolves to a different target.
func (w *Watcher) changed(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return false
	}

	target := resolve(w.path)
	retargeted := target != "" && target != w.realPath
	w.realPath = target

	if retargeted {
		return true
	}
	return filepath.Clean(event.Name) == w.path && !event.Has(fsnotify.Remove)
}

// resolve returns path with symlinks evaluated, or "" when it does not
// resolve.
func resolve(path string) string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return target
}

func (w *Watcher) reload(onChange func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("config reloaded", zap.String("path", w.path))
	onChange(cfg)
}
