/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/jukebot/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the request tables and their header rows",
	Long: `migrate prepares the configured store: SQL backends get their schema,
and every table gets its header row. Running it twice is harmless.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	opened, err := server.OpenStore(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("prepare store: %w", err)
	}
	defer opened.Close()

	logger.Info().Str("backend", string(cfg.StoreBackend)).Msg("store migrated")
	return nil
}
