/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package poller feeds accepted playlist rows into the download pipeline.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// DefaultBatchSize is the number of rows read per range request.
const DefaultBatchSize = 20

// Enqueuer accepts items for download.
type Enqueuer interface {
	Enqueue(item models.PlaylistItem)
}

// Poller reads the playlist in batches from a cursor. Reading stops at the
// first row without a link, the end-of-list sentinel, and resumes there on
// the next poll so rows written into the sentinel are picked up.
type Poller struct {
	store    store.Store
	sink     Enqueuer
	batch    int
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cursor  int    // last row consumed; 1 is the header
	lastKey string // key of the row at cursor
	seen    map[string]struct{}
}

// New creates a poller.
func New(s store.Store, sink Enqueuer, batch int, interval time.Duration, logger zerolog.Logger) *Poller {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		store:    s,
		sink:     sink,
		batch:    batch,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
		cursor:   1,
		seen:     make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. Store errors are logged and retried on
// the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Int("batch", p.batch).Msg("playlist poller started")
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("playlist poller stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	n, err := p.Poll(ctx)
	telemetry.WorkerTickDuration.WithLabelValues("poller").Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.WorkerTicksTotal.WithLabelValues("poller", "error").Inc()
		p.logger.Error().Err(err).Msg("playlist poll failed")
		return
	}
	telemetry.WorkerTicksTotal.WithLabelValues("poller", "ok").Inc()
	if n > 0 {
		p.logger.Info().Int("enqueued", n).Msg("new playlist items")
	}
}

// Poll reads new rows from the cursor and enqueues accepted ones. It returns
// the number of items enqueued.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkCursor(ctx); err != nil {
		return 0, err
	}

	enqueued := 0
	for {
		from := p.cursor + 1
		rows, err := p.store.ReadRange(ctx, store.TablePlaylist, from, from+p.batch-1)
		if err != nil {
			return enqueued, fmt.Errorf("read playlist rows %d..%d: %w", from, from+p.batch-1, err)
		}

		for i, row := range rows {
			idx := from + i
			req := models.RequestFromRow(idx, row)
			if req.Link == "" {
				p.logger.Debug().Int("row", idx).Msg("end of playlist")
				return enqueued, nil
			}
			p.cursor = idx
			p.lastKey = rowKey(req)

			if req.Status != models.StatusAccepted {
				continue
			}
			if _, dup := p.seen[p.lastKey]; dup {
				continue
			}
			p.seen[p.lastKey] = struct{}{}
			item := models.PlaylistItemFromRequest(req)
			p.sink.Enqueue(item)
			enqueued++
			p.logger.Info().Int("row", idx).Str("link", req.Link).Msg("accepted request enqueued for download")
		}

		if len(rows) < p.batch {
			return enqueued, nil
		}
	}
}

// checkCursor rewinds to the header when the row under the cursor changed,
// which happens when rows above it were archived. The seen set keeps
// rewound rows from being enqueued twice and is pruned to rows still present.
func (p *Poller) checkCursor(ctx context.Context) error {
	if p.cursor <= 1 {
		return nil
	}
	rows, err := p.store.ReadRange(ctx, store.TablePlaylist, p.cursor, p.cursor)
	if err != nil {
		return fmt.Errorf("read playlist cursor row %d: %w", p.cursor, err)
	}
	if len(rows) == 1 && rowKey(models.RequestFromRow(p.cursor, rows[0])) == p.lastKey {
		return nil
	}

	all, err := p.store.ReadAll(ctx, store.TablePlaylist)
	if err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}
	present := make(map[string]struct{}, len(all))
	for i, row := range all {
		if i == 0 {
			continue
		}
		present[rowKey(models.RequestFromRow(i+1, row))] = struct{}{}
	}
	for k := range p.seen {
		if _, ok := present[k]; !ok {
			delete(p.seen, k)
		}
	}

	p.logger.Info().Int("cursor", p.cursor).Msg("playlist shifted, rewinding")
	p.cursor = 1
	p.lastKey = ""
	return nil
}

// Cursor returns the last consumed row.
func (p *Poller) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// rowKey identifies a playlist row across shifts.
func rowKey(req models.Request) string {
	if req.ID != "" {
		return "id:" + req.ID
	}
	return req.Email + "|" + req.Link
}
