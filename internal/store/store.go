/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the boundary to the tabular, row-oriented store that
// holds requests, moderation records, the playlist and history.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/jukebot/internal/models"
)

// Table names a logical table.
type Table string

const (
	TableRequests   Table = "Requests"
	TableModeration Table = "Moderation"
	TablePlaylist   Table = "Playlist"
	TableHistory    Table = "History"
	TableBlacklist  Table = "Blacklist"
	TableSchedule   Table = "Schedule"
)

// Tables lists every table in bootstrap order.
var Tables = []Table{TableRequests, TableModeration, TablePlaylist, TableHistory, TableBlacklist, TableSchedule}

var (
	// ErrDeleteRefused is returned when a table does not allow row deletion
	// (e.g. rows owned by an intake form). Callers fall back to ClearRow.
	ErrDeleteRefused = errors.New("store: row deletion refused")
	// ErrRowOutOfRange is returned for row numbers outside the table.
	ErrRowOutOfRange = errors.New("store: row out of range")
	// ErrUnknownTable is returned for tables the backend does not know.
	ErrUnknownTable = errors.New("store: unknown table")
)

// Store is the row-oriented contract the engine needs. Rows and columns are
// 1-based and row 1 is the header.
type Store interface {
	ReadAll(ctx context.Context, table Table) ([]models.Row, error)
	// ReadRange returns rows from..to inclusive; rows past the end are omitted.
	ReadRange(ctx context.Context, table Table, from, to int) ([]models.Row, error)
	Append(ctx context.Context, table Table, row models.Row) error
	UpdateCell(ctx context.Context, table Table, row, col int, value string) error
	UpdateRow(ctx context.Context, table Table, row int, values models.Row) error
	DeleteRow(ctx context.Context, table Table, row int) error
	// ClearRow blanks every cell of the row, keeping its position.
	ClearRow(ctx context.Context, table Table, row int) error
}

var activeHeader = models.Row{"id", "email", "name", "message", "link", "status", "status_message"}

// Headers holds the header row written into empty tables.
var Headers = map[Table]models.Row{
	TableRequests:   activeHeader,
	TableModeration: activeHeader,
	TablePlaylist:   activeHeader,
	TableHistory:    append(activeHeader.Padded(models.RecordWidth), "observation"),
	TableBlacklist:  {"email"},
	TableSchedule:   {"start", "end", "enabled"},
}

// Bootstrap writes header rows into tables that are still empty.
func Bootstrap(ctx context.Context, s Store) error {
	for _, table := range Tables {
		rows, err := s.ReadRange(ctx, table, 1, 1)
		if err != nil {
			return fmt.Errorf("read %s header: %w", table, err)
		}
		if len(rows) > 0 {
			continue
		}
		if err := s.Append(ctx, table, Headers[table]); err != nil {
			return fmt.Errorf("write %s header: %w", table, err)
		}
	}
	return nil
}

func knownTable(table Table) bool {
	_, ok := Headers[table]
	return ok
}

func checkRange(from, to int) error {
	if from < 1 || to < from {
		return fmt.Errorf("%w: range %d..%d", ErrRowOutOfRange, from, to)
	}
	return nil
}
