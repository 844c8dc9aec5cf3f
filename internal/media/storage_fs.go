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
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// partialSuffixes mark files the downloader leaves behind when interrupted.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// AssetStore is the local asset library: one directory per title initial,
// files named "<normalized-title>__<identity>.<ext>".
type AssetStore struct {
	rootDir string
	logger  zerolog.Logger
}

// NewAssetStore creates a filesystem asset library rooted at rootDir.
func NewAssetStore(rootDir string, logger zerolog.Logger) *AssetStore {
	return &AssetStore{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "assets").Logger(),
	}
}

// Root returns the library directory.
func (fs *AssetStore) Root() string {
	return fs.rootDir
}

// EnsureRoot creates the library directory if needed.
func (fs *AssetStore) EnsureRoot() error {
	if err := os.MkdirAll(fs.rootDir, 0o755); err != nil {
		return fmt.Errorf("create asset root: %w", err)
	}
	return nil
}

// CheckAccess verifies the library directory exists and is accessible.
func (fs *AssetStore) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("asset root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access asset root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset root is not a directory: %s", fs.rootDir)
	}
	return nil
}

// OutputTemplate creates the initial-letter directory for title and returns
// the downloader output template for it. An empty identity is left for the
// downloader to fill in.
func (fs *AssetStore) OutputTemplate(title, identity string) (string, error) {
	if identity == "" {
		identity = "%(id)s"
	}
	name := AssetName(title, identity)
	dir := filepath.Join(fs.rootDir, Initial(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset directory: %w", err)
	}
	return filepath.Join(dir, name+".%(ext)s"), nil
}

// ScanResult summarizes a library walk.
type ScanResult struct {
	Assets   int
	Skipped  int
	Pruned   int
	Errors   int
	Duration time.Duration
}

// Scan walks the library, calling fn for every audio file. Partial download
// leftovers older than staleAfter are removed; zero disables pruning.
func (fs *AssetStore) Scan(ctx context.Context, staleAfter time.Duration, fn func(path string)) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{}

	err := filepath.Walk(fs.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == fs.rootDir {
				return filepath.SkipAll
			}
			fs.logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			result.Errors++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		switch {
		case IsAudioFile(path):
			result.Assets++
			if fn != nil {
				fn(path)
			}
		case isPartial(path):
			if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
				if err := os.Remove(path); err != nil {
					fs.logger.Warn().Err(err).Str("path", path).Msg("remove partial download")
					result.Errors++
					return nil
				}
				result.Pruned++
				fs.logger.Debug().Str("path", path).Msg("removed stale partial download")
			}
		default:
			result.Skipped++
		}
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("scan assets: %w", err)
	}

	fs.logger.Info().
		Int("assets", result.Assets).
		Int("skipped", result.Skipped).
		Int("pruned", result.Pruned).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("asset scan complete")
	return result, nil
}

// Delete removes an asset file.
func (fs *AssetStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset: %w", err)
	}
	fs.logger.Debug().Str("path", path).Msg("asset deleted")
	return nil
}

func isPartial(path string) bool {
	lower := strings.ToLower(path)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
