/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

// ErrRowNotFound is returned when a played item's row has left the playlist.
var ErrRowNotFound = errors.New("playlist row not found")

// Marker records that an item was played.
type Marker interface {
	MarkPlayed(ctx context.Context, item models.PlaylistItem) error
}

// RowMarker sets the status of the item's playlist row to played. Rows may
// have moved since the item was polled, so the row is located again by its
// id, or by email and link for rows without one, before writing.
type RowMarker struct {
	store      store.Store
	maxElapsed time.Duration
	logger     zerolog.Logger
}

// NewRowMarker creates a marker retrying transient failures for up to
// maxElapsed.
func NewRowMarker(s store.Store, maxElapsed time.Duration, logger zerolog.Logger) *RowMarker {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return &RowMarker{
		store:      s,
		maxElapsed: maxElapsed,
		logger:     logger.With().Str("component", "row_marker").Logger(),
	}
}

// MarkPlayed writes the played status with exponential backoff.
func (m *RowMarker) MarkPlayed(ctx context.Context, item models.PlaylistItem) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = m.maxElapsed

	attempt := 0
	op := func() error {
		attempt++
		rows, err := m.store.ReadAll(ctx, store.TablePlaylist)
		if err != nil {
			return fmt.Errorf("read playlist: %w", err)
		}
		idx := LocateRow(rows, item)
		if idx == 0 {
			return backoff.Permanent(ErrRowNotFound)
		}
		if err := m.store.UpdateCell(ctx, store.TablePlaylist, idx, models.ColStatus, string(models.StatusPlayed)); err != nil {
			return fmt.Errorf("update playlist row %d: %w", idx, err)
		}
		m.logger.Info().Int("row", idx).Str("title", item.Title).Msg("row marked played")
		return nil
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("mark played failed, retrying")
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// LocateRow returns the 1-based playlist row holding item, or 0. The row the
// item was polled from is checked first.
func LocateRow(rows []models.Row, item models.PlaylistItem) int {
	matches := func(row models.Row) bool {
		if row.IsBlank() {
			return false
		}
		if item.RowID != "" {
			return row.Cell(models.ColID) == item.RowID
		}
		return row.Cell(models.ColEmail) == item.Email && row.Cell(models.ColLink) == item.Link
	}
	if item.RowIndex >= 2 && item.RowIndex <= len(rows) && matches(rows[item.RowIndex-1]) {
		return item.RowIndex
	}
	for i := 2; i <= len(rows); i++ {
		if matches(rows[i-1]) {
			return i
		}
	}
	return 0
}
