/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package moderation moves requests through automated validation and human
// review into the playlist.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/archive"
	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
	"github.com/friendsincode/jukebot/internal/telemetry"
	"github.com/friendsincode/jukebot/internal/validator"
)

// Validator judges a single request.
type Validator interface {
	Validate(ctx context.Context, blacklist validator.Blacklist, req models.Request) models.Verdict
}

// Stats counts what one pass did.
type Stats struct {
	Forwarded int // requests sent to human review
	Rejected  int // requests refused by the validator
	Promoted  int // records moved to the playlist
	Declined  int // records refused by a moderator
	Waiting   int // accepted records still missing a directive
}

// Gate runs the request intake and moderation reconciliation passes.
//
// Both passes first write every destination row in table order, so the
// playlist keeps acceptance order, and only then remove the sources from the
// bottom up, so earlier row numbers stay valid. A source row is removed only
// after its destination write succeeded.
type Gate struct {
	store     store.Store
	validator Validator
	archiver  *archive.Archiver
	bus       events.Publisher
	logger    zerolog.Logger
}

// NewGate creates a moderation gate.
func NewGate(s store.Store, v Validator, a *archive.Archiver, bus events.Publisher, logger zerolog.Logger) *Gate {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Gate{
		store:     s,
		validator: v,
		archiver:  a,
		bus:       bus,
		logger:    logger.With().Str("component", "moderation").Logger(),
	}
}

// Tick runs intake followed by reconciliation.
func (g *Gate) Tick(ctx context.Context) (Stats, error) {
	intake, errIntake := g.ProcessRequests(ctx)
	review, errReview := g.ReconcileModeration(ctx)
	intake.Promoted = review.Promoted
	intake.Declined = review.Declined
	intake.Waiting = review.Waiting
	return intake, errors.Join(errIntake, errReview)
}

// ProcessRequests validates every pending request. Refused requests are
// archived with the reason; the rest are forwarded to moderation as pending
// with an empty status-message.
func (g *Gate) ProcessRequests(ctx context.Context) (Stats, error) {
	var stats Stats

	rows, err := g.store.ReadAll(ctx, store.TableRequests)
	if err != nil {
		return stats, fmt.Errorf("read requests: %w", err)
	}
	blRows, err := g.store.ReadAll(ctx, store.TableBlacklist)
	if err != nil {
		return stats, fmt.Errorf("read blacklist: %w", err)
	}
	blacklist := validator.NewBlacklist(blRows)

	var (
		done []int
		errs []error
	)
	for i := 2; i <= len(rows); i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		row := rows[i-1]
		if row.IsBlank() {
			continue
		}
		req := models.RequestFromRow(i, row)
		verdict := g.validator.Validate(ctx, blacklist, req)

		if !verdict.Accepted {
			rec, observation := archive.RejectedRecord(row, verdict.Reason)
			if err := g.archiver.Record(ctx, store.TableRequests, rec, observation); err != nil {
				errs = append(errs, fmt.Errorf("archive request row %d: %w", i, err))
				continue
			}
			telemetry.RequestsValidatedTotal.WithLabelValues("rejected").Inc()
			g.logger.Info().Int("row", i).Str("name", req.Name).Str("reason", verdict.Reason).Msg("request rejected")
			g.bus.Publish(events.EventRequestRejected, events.Payload{"id": req.ID, "name": req.Name, "reason": verdict.Reason})
			stats.Rejected++
			done = append(done, i)
			continue
		}

		fwd := row.Padded(models.RecordWidth)
		fwd[models.ColStatus-1] = string(models.StatusPending)
		fwd[models.ColStatusMessage-1] = ""
		if err := g.store.Append(ctx, store.TableModeration, fwd); err != nil {
			errs = append(errs, fmt.Errorf("forward request row %d: %w", i, err))
			continue
		}
		telemetry.RequestsValidatedTotal.WithLabelValues("accepted").Inc()
		g.logger.Info().Int("row", i).Str("name", req.Name).Str("link", req.Link).Msg("request sent to moderation")
		g.bus.Publish(events.EventRequestAccepted, events.Payload{"id": req.ID, "name": req.Name, "link": req.Link})
		stats.Forwarded++
		done = append(done, i)
	}

	errs = append(errs, g.removeAll(ctx, store.TableRequests, done)...)
	if stats.Forwarded+stats.Rejected > 0 {
		g.logger.Info().Int("forwarded", stats.Forwarded).Int("rejected", stats.Rejected).Msg("requests processed")
	}
	return stats, errors.Join(errs...)
}

// ReconcileModeration applies human decisions. Rejected records are archived;
// accepted records carrying a directive are promoted to the playlist.
// Accepted records without a directive wait for the next pass.
func (g *Gate) ReconcileModeration(ctx context.Context) (Stats, error) {
	var stats Stats

	rows, err := g.store.ReadAll(ctx, store.TableModeration)
	if err != nil {
		return stats, fmt.Errorf("read moderation: %w", err)
	}

	var (
		done     []int
		promoted []models.Row
		errs     []error
	)
	for i := 2; i <= len(rows); i++ {
		row := rows[i-1]
		if row.IsBlank() {
			continue
		}
		rec := models.RequestFromRow(i, row)

		switch {
		case rec.Status == models.StatusRejected:
			if err := g.archiver.Record(ctx, store.TableModeration, row, models.ReasonRejectedByHuman); err != nil {
				errs = append(errs, fmt.Errorf("archive moderation row %d: %w", i, err))
				continue
			}
			telemetry.ModerationDecisionsTotal.WithLabelValues("rejected").Inc()
			g.logger.Info().Int("row", i).Str("name", rec.Name).Msg("request rejected by moderator")
			g.bus.Publish(events.EventModerationReject, events.Payload{"id": rec.ID, "name": rec.Name})
			stats.Declined++
			done = append(done, i)

		case rec.Status == models.StatusAccepted && rec.StatusMessage != "":
			promoted = append(promoted, row.Padded(models.RecordWidth))
			done = append(done, i)

		case rec.Status == models.StatusAccepted:
			stats.Waiting++
		}
	}

	if len(promoted) > 0 {
		n, err := g.appendToPlaylist(ctx, promoted)
		if err != nil {
			errs = append(errs, err)
		}
		// Keep only archived rows plus the promotions that reached the playlist.
		done = keepPromoted(rows, done, n)
		stats.Promoted = n
		for _, row := range promoted[:n] {
			rec := models.RequestFromRow(0, row)
			telemetry.ModerationDecisionsTotal.WithLabelValues("accepted").Inc()
			g.logger.Info().Str("name", rec.Name).Str("link", rec.Link).Str("directive", string(rec.Directive())).Msg("request promoted to playlist")
			g.bus.Publish(events.EventModerationPromote, events.Payload{"id": rec.ID, "name": rec.Name, "link": rec.Link})
		}
	}

	errs = append(errs, g.removeAll(ctx, store.TableModeration, done)...)
	if stats.Promoted+stats.Declined > 0 {
		g.logger.Info().Int("promoted", stats.Promoted).Int("declined", stats.Declined).Msg("moderation reconciled")
	}
	return stats, errors.Join(errs...)
}

// appendToPlaylist writes rows in order, reusing a trailing blank sentinel
// for the first row, and leaves exactly one blank sentinel at the end. It
// returns how many rows were written.
func (g *Gate) appendToPlaylist(ctx context.Context, rows []models.Row) (int, error) {
	current, err := g.store.ReadAll(ctx, store.TablePlaylist)
	if err != nil {
		return 0, fmt.Errorf("read playlist: %w", err)
	}

	written := 0
	last := len(current)
	if last >= 2 && current[last-1].IsBlank() {
		if err := g.store.UpdateRow(ctx, store.TablePlaylist, last, rows[0]); err != nil {
			return 0, fmt.Errorf("fill playlist sentinel: %w", err)
		}
		written = 1
	}
	for _, row := range rows[written:] {
		if err := g.store.Append(ctx, store.TablePlaylist, row); err != nil {
			return written, fmt.Errorf("append to playlist: %w", err)
		}
		written++
	}
	if err := g.store.Append(ctx, store.TablePlaylist, make(models.Row, models.RecordWidth)); err != nil {
		// The rows are in; the next promotion or sweep restores the sentinel.
		g.logger.Warn().Err(err).Msg("append playlist sentinel")
	}
	return written, nil
}

// removeAll deletes rows bottom-up so earlier indices stay valid.
func (g *Gate) removeAll(ctx context.Context, table store.Table, indices []int) []error {
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	var errs []error
	for _, idx := range indices {
		if err := g.archiver.Remove(ctx, table, idx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// keepPromoted drops promotion indices past the first n promoted rows.
func keepPromoted(rows []models.Row, done []int, n int) []int {
	kept := done[:0]
	seen := 0
	for _, idx := range done {
		if models.ParseStatus(rows[idx-1].Cell(models.ColStatus)) == models.StatusRejected {
			kept = append(kept, idx)
			continue
		}
		if seen < n {
			kept = append(kept, idx)
		}
		seen++
	}
	return kept
}
