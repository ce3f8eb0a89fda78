// Package watcher keeps the specification workspace staged when its files
// are edited outside the API. A save from an external editor then behaves
// exactly like the save_file endpoint: write, then stage the workspace.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Stager is the workspace surface the watcher needs.
type Stager interface {
	Path() string
	StageAll(ctx context.Context) error
}

// Watcher watches one workspace directory tree and stages the workspace
// after file changes settle.
type Watcher struct {
	target   Stager
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	logger   *zap.Logger
}

// New creates a watcher over the given workspace.
func New(target Stager, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("initializing filesystem watcher: %w", err)
	}

	return &Watcher{
		target:   target,
		debounce: debounce,
		watcher:  fsw,
		stop:     make(chan struct{}),
		logger:   logger.Named("watcher"),
	}, nil
}

// Start begins watching. Events are processed in a background goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.target.Path()); err != nil {
		return fmt.Errorf("watching workspace tree: %w", err)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// addTree registers the directory and every subdirectory, skipping
// revision-control internals. fsnotify watches are not recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// processEvents debounces file events and stages the workspace once a burst
// of changes settles.
func (w *Watcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}

			// New directories must be added to the watch set or edits
			// below them are invisible.
			if event.Op&fsnotify.Create == fsnotify.Create {
				_ = w.addTree(w.target.Path())
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.target.StageAll(ctx); err != nil {
				w.logger.Warn("failed to stage workspace after external edit", zap.Error(err))
				continue
			}
			w.logger.Debug("workspace staged after external edit")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

// ignored filters out revision-control internals.
func (w *Watcher) ignored(path string) bool {
	sep := string(filepath.Separator)
	return strings.Contains(path, sep+".git"+sep) || strings.HasSuffix(path, sep+".git")
}
