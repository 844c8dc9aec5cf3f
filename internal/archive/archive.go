/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package archive moves finished rows into the History table.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// Archiver appends rows to History and removes them from their source table.
type Archiver struct {
	store  store.Store
	logger zerolog.Logger
}

// New creates an archiver.
func New(s store.Store, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:  s,
		logger: logger.With().Str("component", "archiver").Logger(),
	}
}

// Archive appends row, normalized to the record width, plus reason to
// History and then removes the source row. The History write always comes
// first so a failed removal can only duplicate, never lose, a record.
func (a *Archiver) Archive(ctx context.Context, table store.Table, index int, row models.Row, reason string) error {
	if err := a.Record(ctx, table, row, reason); err != nil {
		return fmt.Errorf("archive %s row %d: %w", table, index, err)
	}
	return a.Remove(ctx, table, index)
}

// Record appends the History entry for a row of table without touching the
// source. Batch callers record first and remove bottom-up afterwards.
func (a *Archiver) Record(ctx context.Context, table store.Table, row models.Row, reason string) error {
	record := append(row.Padded(models.RecordWidth), reason)
	if err := a.store.Append(ctx, store.TableHistory, record); err != nil {
		return fmt.Errorf("append to history: %w", err)
	}
	telemetry.ArchivedTotal.WithLabelValues(string(table)).Inc()
	return nil
}

// RejectedRecord shapes a robot-refused request for History: status becomes
// rejected and the status-message is cleared.
func RejectedRecord(row models.Row, reason string) (models.Row, string) {
	rec := row.Padded(models.RecordWidth)
	rec[models.ColStatus-1] = string(models.StatusRejected)
	rec[models.ColStatusMessage-1] = ""
	return rec, fmt.Sprintf("%s: %s", models.ReasonRejectedByRobot, reason)
}

// Reject archives a request refused by the robot: status becomes rejected,
// the status-message is cleared and the reason goes to the observation.
func (a *Archiver) Reject(ctx context.Context, table store.Table, index int, row models.Row, reason string) error {
	rec, observation := RejectedRecord(row, reason)
	return a.Archive(ctx, table, index, rec, observation)
}

// Remove deletes a row, blanking it instead when the store refuses the
// delete. Any other failure is returned untouched.
func (a *Archiver) Remove(ctx context.Context, table store.Table, index int) error {
	err := a.store.DeleteRow(ctx, table, index)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrDeleteRefused) {
		return fmt.Errorf("delete %s row %d: %w", table, index, err)
	}

	a.logger.Debug().Str("table", string(table)).Int("row", index).Msg("delete refused, clearing row")
	if err := a.store.ClearRow(ctx, table, index); err != nil {
		return fmt.Errorf("clear %s row %d: %w", table, index, err)
	}
	telemetry.ClearedRowsTotal.WithLabelValues(string(table)).Inc()
	return nil
}
