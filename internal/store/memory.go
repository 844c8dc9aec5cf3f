/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/friendsincode/jukebot/internal/models"
)

// MemoryStore keeps tables in process memory. It backs tests and single-box
// deployments that do not need the rows to survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Table][]models.Row
	forms  map[Table]bool
}

// NewMemoryStore creates an empty store. Rows of formTables cannot be deleted.
func NewMemoryStore(formTables ...Table) *MemoryStore {
	s := &MemoryStore{
		tables: make(map[Table][]models.Row),
		forms:  make(map[Table]bool),
	}
	for _, t := range formTables {
		s.forms[t] = true
	}
	return s
}

func (s *MemoryStore) ReadAll(_ context.Context, table Table) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.tables[table]), nil
}

func (s *MemoryStore) ReadRange(_ context.Context, table Table, from, to int) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[table]
	if from > len(rows) {
		return nil, nil
	}
	if to > len(rows) {
		to = len(rows)
	}
	return cloneRows(rows[from-1 : to]), nil
}

func (s *MemoryStore) Append(_ context.Context, table Table, row models.Row) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], append(models.Row(nil), row...))
	return nil
}

func (s *MemoryStore) UpdateCell(_ context.Context, table Table, row, col int, value string) error {
	if col < 1 {
		return fmt.Errorf("%w: column %d", ErrRowOutOfRange, col)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.rowsFor(table, row)
	if err != nil {
		return err
	}
	rows[row-1] = rows[row-1].With(col, value)
	return nil
}

func (s *MemoryStore) UpdateRow(_ context.Context, table Table, row int, values models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.rowsFor(table, row)
	if err != nil {
		return err
	}
	rows[row-1] = append(models.Row(nil), values...)
	return nil
}

func (s *MemoryStore) DeleteRow(_ context.Context, table Table, row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.rowsFor(table, row)
	if err != nil {
		return err
	}
	if s.forms[table] {
		return fmt.Errorf("%w: %s row %d", ErrDeleteRefused, table, row)
	}
	s.tables[table] = append(rows[:row-1], rows[row:]...)
	return nil
}

func (s *MemoryStore) ClearRow(_ context.Context, table Table, row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.rowsFor(table, row)
	if err != nil {
		return err
	}
	width := len(rows[row-1])
	if width < models.RecordWidth {
		width = models.RecordWidth
	}
	rows[row-1] = make(models.Row, width)
	return nil
}

// rowsFor must be called with the lock held.
func (s *MemoryStore) rowsFor(table Table, row int) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	rows := s.tables[table]
	if row < 1 || row > len(rows) {
		return nil, fmt.Errorf("%w: %s row %d of %d", ErrRowOutOfRange, table, row, len(rows))
	}
	return rows, nil
}

func cloneRows(rows []models.Row) []models.Row {
	out := make([]models.Row, len(rows))
	for i, r := range rows {
		out[i] = append(models.Row(nil), r...)
	}
	return out
}
