/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"time"
)

// SheetRow persists one row of a request table. Rows of a table are ordered
// by Position; the 1-based row number is the rank in that order.
type SheetRow struct {
	ID        uint      `gorm:"primaryKey"`
	Sheet     string    `gorm:"column:sheet;size:32;not null;index:idx_sheet_rows_position,priority:1"`
	Position  int64     `gorm:"not null;index:idx_sheet_rows_position,priority:2"`
	Cells     string    `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (SheetRow) TableName() string {
	return "sheet_rows"
}

// Row decodes the stored cells.
func (s SheetRow) Row() Row {
	var row Row
	if s.Cells == "" {
		return row
	}
	if err := json.Unmarshal([]byte(s.Cells), &row); err != nil {
		return Row{}
	}
	return row
}

// SetRow encodes cells into the record.
func (s *SheetRow) SetRow(row Row) {
	if row == nil {
		row = Row{}
	}
	data, _ := json.Marshal(row)
	s.Cells = string(data)
}
