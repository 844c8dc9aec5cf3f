/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/jukebot/internal/media"
)

var (
	scanPruneAfter time.Duration
	scanDir        string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the download directory and report what the media cache would hold",
	Long: `scan walks the download directory the way the player does at startup,
removes partial downloads older than --prune-after, and prints a JSON
summary of the assets found and the resulting cache sizes.

Examples:
  jukebot scan
  jukebot scan --dir /srv/jukebot/downloads --prune-after 30m`,
	RunE: runScan,
}

type scanReport struct {
	Root            string           `json:"root"`
	Assets          int              `json:"assets"`
	Skipped         int              `json:"skipped"`
	Pruned          int              `json:"pruned"`
	Errors          int              `json:"errors"`
	DurationSeconds float64          `json:"duration_seconds"`
	Cache           media.CacheStats `json:"cache"`
}

func init() {
	scanCmd.Flags().DurationVar(&scanPruneAfter, "prune-after", time.Hour, "Remove partial downloads older than this (0 keeps them)")
	scanCmd.Flags().StringVar(&scanDir, "dir", "", "Download directory (default: JUKEBOT_ASSET_ROOT)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	root := cfg.AssetRoot
	if scanDir != "" {
		root = scanDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	assets := media.NewAssetStore(root, logger)
	result, err := assets.Scan(ctx, scanPruneAfter, nil)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	cache := media.NewCache()
	if _, err := cache.Rebuild(ctx, assets); err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(scanReport{
		Root:            root,
		Assets:          result.Assets,
		Skipped:         result.Skipped,
		Pruned:          result.Pruned,
		Errors:          result.Errors,
		DurationSeconds: result.Duration.Seconds(),
		Cache:           cache.Stats(),
	})
}
