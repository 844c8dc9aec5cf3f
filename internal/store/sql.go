/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/jukebot/internal/models"
)

// SQLStore keeps tables in a relational database through gorm. Each table is
// a run of models.SheetRow records ordered by position.
type SQLStore struct {
	db    *gorm.DB
	forms map[Table]bool
}

// NewSQLStore wraps a migrated gorm connection.
func NewSQLStore(db *gorm.DB, formTables ...Table) *SQLStore {
	forms := make(map[Table]bool, len(formTables))
	for _, t := range formTables {
		forms[t] = true
	}
	return &SQLStore{db: db, forms: forms}
}

func (s *SQLStore) ReadAll(ctx context.Context, table Table) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var records []models.SheetRow
	err := s.db.WithContext(ctx).
		Where("sheet = ?", string(table)).
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return toRows(records), nil
}

func (s *SQLStore) ReadRange(ctx context.Context, table Table, from, to int) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	var records []models.SheetRow
	err := s.db.WithContext(ctx).
		Where("sheet = ?", string(table)).
		Order("position ASC").
		Offset(from - 1).
		Limit(to - from + 1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("read %s rows %d..%d: %w", table, from, to, err)
	}
	return toRows(records), nil
}

func (s *SQLStore) Append(ctx context.Context, table Table, row models.Row) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&models.SheetRow{}).
			Where("sheet = ?", string(table)).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("next position in %s: %w", table, err)
		}
		rec := models.SheetRow{Sheet: string(table), Position: last + 1}
		rec.SetRow(row)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("append to %s: %w", table, err)
		}
		return nil
	})
}

func (s *SQLStore) UpdateCell(ctx context.Context, table Table, row, col int, value string) error {
	if col < 1 {
		return fmt.Errorf("%w: column %d", ErrRowOutOfRange, col)
	}
	return s.withRow(ctx, table, row, func(tx *gorm.DB, rec *models.SheetRow) error {
		rec.SetRow(rec.Row().With(col, value))
		return tx.Model(rec).Update("cells", rec.Cells).Error
	})
}

func (s *SQLStore) UpdateRow(ctx context.Context, table Table, row int, values models.Row) error {
	return s.withRow(ctx, table, row, func(tx *gorm.DB, rec *models.SheetRow) error {
		rec.SetRow(values)
		return tx.Model(rec).Update("cells", rec.Cells).Error
	})
}

func (s *SQLStore) DeleteRow(ctx context.Context, table Table, row int) error {
	return s.withRow(ctx, table, row, func(tx *gorm.DB, rec *models.SheetRow) error {
		if s.forms[table] {
			return fmt.Errorf("%w: %s row %d", ErrDeleteRefused, table, row)
		}
		return tx.Delete(rec).Error
	})
}

func (s *SQLStore) ClearRow(ctx context.Context, table Table, row int) error {
	return s.withRow(ctx, table, row, func(tx *gorm.DB, rec *models.SheetRow) error {
		width := len(rec.Row())
		if width < models.RecordWidth {
			width = models.RecordWidth
		}
		rec.SetRow(make(models.Row, width))
		return tx.Model(rec).Update("cells", rec.Cells).Error
	})
}

// withRow locates the 1-based row inside a transaction and hands it to fn.
func (s *SQLStore) withRow(ctx context.Context, table Table, row int, fn func(tx *gorm.DB, rec *models.SheetRow) error) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, row)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.SheetRow
		err := tx.Where("sheet = ?", string(table)).
			Order("position ASC").
			Offset(row - 1).
			Limit(1).
			Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, row)
		}
		if err != nil {
			return fmt.Errorf("locate %s row %d: %w", table, row, err)
		}
		return fn(tx, &rec)
	})
}

func toRows(records []models.SheetRow) []models.Row {
	rows := make([]models.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows
}
