// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-ingests files of a directory tree when they are created or
// modified. Bursts of events are coalesced.
type Watcher struct {
	ingester *Ingester
	name     string
	root     string
	debounce time.Duration
	onIngest func(path string, chunks int, err error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the 500ms debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithIngestCallback is called after every re-ingestion attempt.
func WithIngestCallback(fn func(path string, chunks int, err error)) WatcherOption {
	return func(w *Watcher) {
		w.onIngest = fn
	}
}

// NewWatcher creates a watcher feeding the named collection.
func NewWatcher(ing *Ingester, name, root string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		ingester: ing,
		name:     name,
		root:     root,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the tree with fsnotify and processes events in the
// background until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = watcher

	if err := w.addTree(w.root); err != nil {
		_ = watcher.Close()
		return err
	}

	go w.loop(ctx)

	w.ingester.logger.Info("Watching knowledge directory", "path", w.root, "knowledge", w.name)
	return nil
}

// Done is closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// addTree watches dir and its subdirectories; fsnotify is not recursive.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.Close()

	pending := map[string]struct{}{}
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-fire:
			fire = nil
			for path := range pending {
				n, err := w.ingester.ingest(ctx, w.name, w.root, path)
				if err != nil {
					w.ingester.logger.Warn("Re-ingestion failed", "path", path, "error", err)
				}
				if w.onIngest != nil {
					w.onIngest(path, n, err)
				}
			}
			clear(pending)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Has(fsnotify.Create) {
					if err := w.addTree(event.Name); err != nil {
						w.ingester.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
				continue
			}
			if !Supported(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			fire = time.After(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.ingester.logger.Error("File watcher error", "error", err)
		}
	}
}
