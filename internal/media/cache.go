/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"os"
	"sync"

	"github.com/friendsincode/jukebot/internal/telemetry"
)

// Cache maps identities and title keys to local asset paths and tracks the
// identities being downloaded. One lock guards all three so a lookup never
// interleaves with a half-finished index.
type Cache struct {
	mu       sync.Mutex
	byID     map[string]string
	byTitle  map[string]string
	inFlight map[string]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		byID:     make(map[string]string),
		byTitle:  make(map[string]string),
		inFlight: make(map[string]struct{}),
	}
}

// Resolution is the outcome of Resolve.
type Resolution int

const (
	// Hit means the asset is already local.
	Hit Resolution = iota
	// Acquired means the caller now owns the download of the identity.
	Acquired
	// Duplicate means another download of the identity is in flight.
	Duplicate
)

// Resolve looks the item up by identity, then by title, and on a miss marks
// the identity in flight. The returned path is set only on a Hit.
func (c *Cache) Resolve(identity, title string) (string, Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.lookupLocked(identity, title); ok {
		return path, Hit
	}
	if _, busy := c.inFlight[identity]; busy {
		return "", Duplicate
	}
	c.inFlight[identity] = struct{}{}
	return "", Acquired
}

// Lookup checks both tiers without touching the in-flight set.
func (c *Cache) Lookup(identity, title string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(identity, title)
}

// lookupLocked evicts entries whose file has disappeared.
func (c *Cache) lookupLocked(identity, title string) (string, bool) {
	if identity != "" {
		if path, ok := c.byID[identity]; ok {
			if fileExists(path) {
				return path, true
			}
			delete(c.byID, identity)
		}
	}
	if key := TitleKey(title); key != "" && key != TitleKey(UnknownTitle) {
		if path, ok := c.byTitle[key]; ok {
			if fileExists(path) {
				return path, true
			}
			delete(c.byTitle, key)
		}
	}
	return "", false
}

// Acquire marks identity in flight. It reports false when it already was.
func (c *Cache) Acquire(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[identity]; busy {
		return false
	}
	c.inFlight[identity] = struct{}{}
	return true
}

// Complete indexes a finished download and releases its in-flight marker in
// one step. identity is the key passed to Resolve; the indexed identity comes
// from the file name.
func (c *Cache) Complete(identity, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexLocked(path)
	delete(c.inFlight, identity)
	c.publishLocked()
}

// Release drops an in-flight marker after a failed download.
func (c *Cache) Release(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, identity)
}

// Index adds an asset path to both tiers. It reports false when the name
// does not follow the "<title>__<identity>" convention.
func (c *Cache) Index(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.indexLocked(path)
	c.publishLocked()
	return ok
}

func (c *Cache) indexLocked(path string) bool {
	title, identity, ok := ParseAssetName(path)
	if !ok {
		return false
	}
	c.byID[identity] = path
	if key := TitleKey(title); key != "" {
		c.byTitle[key] = path
	}
	return true
}

// Forget removes every entry pointing at path.
func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.byID {
		if p == path {
			delete(c.byID, k)
		}
	}
	for k, p := range c.byTitle {
		if p == path {
			delete(c.byTitle, k)
		}
	}
	c.publishLocked()
}

// Rebuild replaces both tiers with the contents of the asset library. The
// in-flight set is left alone.
func (c *Cache) Rebuild(ctx context.Context, assets *AssetStore) (int, error) {
	fresh := NewCache()
	n := 0
	_, err := assets.Scan(ctx, 0, func(path string) {
		if fresh.indexLocked(path) {
			n++
		}
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.byID = fresh.byID
	c.byTitle = fresh.byTitle
	c.publishLocked()
	c.mu.Unlock()
	return n, nil
}

// CacheStats reports cache sizes.
type CacheStats struct {
	Identities int `json:"identities"`
	Titles     int `json:"titles"`
	InFlight   int `json:"in_flight"`
}

// Stats returns the current sizes.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Identities: len(c.byID), Titles: len(c.byTitle), InFlight: len(c.inFlight)}
}

func (c *Cache) publishLocked() {
	telemetry.CacheEntries.WithLabelValues("identity").Set(float64(len(c.byID)))
	telemetry.CacheEntries.WithLabelValues("title").Set(float64(len(c.byTitle)))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
