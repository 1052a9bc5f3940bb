// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileHandler receives the corpus files that appeared or changed during
// one debounce window, sorted and deduplicated.
type FileHandler func(ctx context.Context, paths []string)

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more events before calling
	// the handler.
	// Default: 200ms
	DebounceWindow time.Duration

	// BufferSize is the size of the pending event channel.
	// Default: 256
	BufferSize int

	// Logger receives watch errors.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultWatcherOptions returns the default options.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 200 * time.Millisecond,
		BufferSize:     256,
	}
}

// Watcher watches one directory for new or rewritten corpus files.
//
// Only files directly inside the directory with a .yaml or .yml extension
// are reported. Removals are ignored: the index cannot forget texts.
//
// Thread Safety:
//
//	Start and Stop are safe for concurrent use. The handler is called from
//	a single goroutine.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handler  FileHandler
	debounce time.Duration
	logger   *slog.Logger

	paths    chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, handler FileHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = 256
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		handler:  handler,
		debounce: opts.DebounceWindow,
		logger:   logger.With(slog.String("component", "corpus.watcher"), slog.String("dir", dir)),
		paths:    make(chan string, size),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Both background goroutines exit when ctx is done
// or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.watching = true

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the handler to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsCorpusFile(event.Name) {
				continue
			}
			select {
			case w.paths <- event.Name:
			default:
				w.logger.Warn("corpus event dropped", slog.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var batch []string
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			slices.Sort(batch)
			w.handler(ctx, slices.Compact(batch))
		}
		batch = nil
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			flush()
			return
		case path := <-w.paths:
			batch = append(batch, path)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			flush()
		}
	}
}
