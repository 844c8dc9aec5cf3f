/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 2 * time.Second

// Watcher keeps the cache in step with files added to or removed from the
// asset library outside the pipeline, for example by an operator copying
// files in.
type Watcher struct {
	assets   *AssetStore
	cache    *Cache
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]fsnotify.Op
}

// NewWatcher creates a library watcher.
func NewWatcher(assets *AssetStore, cache *Cache, logger zerolog.Logger) *Watcher {
	return &Watcher{
		assets:   assets,
		cache:    cache,
		logger:   logger.With().Str("component", "asset_watcher").Logger(),
		debounce: watchDebounce,
		pending:  make(map[string]fsnotify.Op),
	}
}

// Run watches the library until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	err = filepath.Walk(w.assets.Root(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch asset directories: %w", err)
	}
	w.logger.Info().Str("root", w.assets.Root()).Msg("watching asset library")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.Add(ev.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", ev.Name).Msg("watch new directory")
					}
					continue
				}
			}
			if !IsAudioFile(ev.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] |= ev.Op
			w.mu.Unlock()
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			w.flush()

		case <-ctx.Done():
			return nil
		}
	}
}

// flush applies the debounced events: existing files are indexed, missing
// ones forgotten.
func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	indexed, forgotten := 0, 0
	for path := range pending {
		if fileExists(path) {
			if w.cache.Index(path) {
				indexed++
			}
			continue
		}
		w.cache.Forget(path)
		forgotten++
	}
	if indexed+forgotten > 0 {
		w.logger.Debug().Int("indexed", indexed).Int("forgotten", forgotten).Msg("asset library changed")
	}
}
