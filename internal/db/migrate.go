/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/jukebot/internal/models"
)

// Migrate applies the schema using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.SheetRow{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := normalizeEmptyCells(database); err != nil {
		return err
	}
	return nil
}

// normalizeEmptyCells stores rows without cells as an empty JSON array so
// every backend decodes them the same way.
func normalizeEmptyCells(database *gorm.DB) error {
	if err := database.Model(&models.SheetRow{}).
		Where("cells IS NULL OR cells = ''").
		Update("cells", "[]").Error; err != nil {
		return fmt.Errorf("normalize empty cells: %w", err)
	}
	return nil
}
