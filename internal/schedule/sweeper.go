/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/archive"
	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

// Sweeper archives played playlist rows once the station is outside every
// window.
type Sweeper struct {
	store    store.Store
	gate     *Gate
	archiver *archive.Archiver
	bus      events.Publisher
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper bound to a schedule gate.
func NewSweeper(s store.Store, gate *Gate, a *archive.Archiver, bus events.Publisher, logger zerolog.Logger) *Sweeper {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Sweeper{
		store:    s,
		gate:     gate,
		archiver: a,
		bus:      bus,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// SweepExpired archives every played row with reason "window closed" and
// leaves exactly one blank sentinel at the end of the playlist. It does
// nothing while a window is active and returns the number of rows archived.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if s.gate.IsActive(ctx, now) {
		return 0, nil
	}

	rows, err := s.store.ReadAll(ctx, store.TablePlaylist)
	if err != nil {
		return 0, fmt.Errorf("read playlist: %w", err)
	}

	var (
		played []int
		errs   []error
	)
	for i := 2; i <= len(rows); i++ {
		row := rows[i-1]
		if row.IsBlank() || models.ParseStatus(row.Cell(models.ColStatus)) != models.StatusPlayed {
			continue
		}
		if err := s.archiver.Record(ctx, store.TablePlaylist, row, models.ReasonWindowClosed); err != nil {
			errs = append(errs, fmt.Errorf("archive playlist row %d: %w", i, err))
			continue
		}
		played = append(played, i)
	}
	for j := len(played) - 1; j >= 0; j-- {
		if err := s.archiver.Remove(ctx, store.TablePlaylist, played[j]); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.ensureSentinel(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(played) > 0 {
		s.logger.Info().Int("archived", len(played)).Msg("played rows swept")
		s.bus.Publish(events.EventPlaylistSwept, events.Payload{"archived": len(played)})
	}
	return len(played), errors.Join(errs...)
}

// ensureSentinel trims trailing blank rows down to one, or appends one.
func (s *Sweeper) ensureSentinel(ctx context.Context) error {
	rows, err := s.store.ReadAll(ctx, store.TablePlaylist)
	if err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}

	blank := 0
	for i := len(rows); i >= 2 && rows[i-1].IsBlank(); i-- {
		blank++
	}
	switch {
	case blank == 0:
		if err := s.store.Append(ctx, store.TablePlaylist, make(models.Row, models.RecordWidth)); err != nil {
			return fmt.Errorf("append playlist sentinel: %w", err)
		}
	case blank > 1:
		for i := len(rows); i > len(rows)-blank+1; i-- {
			err := s.store.DeleteRow(ctx, store.TablePlaylist, i)
			if errors.Is(err, store.ErrDeleteRefused) {
				// Form-backed tables keep their blank rows.
				return nil
			}
			if err != nil {
				return fmt.Errorf("trim playlist row %d: %w", i, err)
			}
		}
	}
	return nil
}
