/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule decides whether the station is inside an active playback
// window and clears the played playlist once it is not.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// DefaultRefreshInterval bounds how often windows are re-read from the store.
const DefaultRefreshInterval = 5 * time.Minute

// Gate caches the enabled time windows and answers activity queries.
//
// Refreshes are attempted at most once per interval, failed attempts
// included. A failed refresh keeps the previous windows; only when no load
// ever succeeded does the gate report active.
type Gate struct {
	store    store.Store
	loc      *time.Location
	interval time.Duration
	bus      events.Publisher
	logger   zerolog.Logger

	refreshMu sync.Mutex // serializes store reads

	mu          sync.RWMutex
	windows     []models.TimeWindow
	loaded      bool
	lastAttempt time.Time
	lastActive  *bool
}

// NewGate creates a schedule gate evaluating times in loc.
func NewGate(s store.Store, loc *time.Location, interval time.Duration, bus events.Publisher, logger zerolog.Logger) *Gate {
	if loc == nil {
		loc = time.Local
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if bus == nil {
		bus = events.Discard{}
	}
	return &Gate{
		store:    s,
		loc:      loc,
		interval: interval,
		bus:      bus,
		logger:   logger.With().Str("component", "schedule").Logger(),
	}
}

// Location returns the zone windows are evaluated in.
func (g *Gate) Location() *time.Location {
	return g.loc
}

// IsActive reports whether now falls inside any enabled window.
func (g *Gate) IsActive(ctx context.Context, now time.Time) bool {
	g.maybeRefresh(ctx, now)

	now = now.In(g.loc)
	tod := models.ClockOf(now)

	g.mu.Lock()
	defer g.mu.Unlock()

	active := !g.loaded
	for _, w := range g.windows {
		if w.Contains(tod) {
			active = true
			break
		}
	}

	if g.lastActive == nil || *g.lastActive != active {
		if g.lastActive != nil {
			g.logger.Info().Bool("active", active).Msg("schedule state changed")
			g.bus.Publish(events.EventScheduleChange, events.Payload{"active": active})
		}
		g.lastActive = &active
		if active {
			telemetry.ScheduleActive.Set(1)
		} else {
			telemetry.ScheduleActive.Set(0)
		}
	}
	return active
}

// CurrentWindowEnd returns the instant the window containing now closes.
// When several windows overlap the latest end wins. It reports false when
// no known window contains now.
func (g *Gate) CurrentWindowEnd(ctx context.Context, now time.Time) (time.Time, bool) {
	g.maybeRefresh(ctx, now)

	now = now.In(g.loc)
	tod := models.ClockOf(now)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		end   time.Time
		found bool
	)
	for _, w := range g.windows {
		if !w.Contains(tod) {
			continue
		}
		day := now
		if w.Wraparound() && tod >= w.Start {
			day = now.AddDate(0, 0, 1)
		}
		candidate := w.End.On(day)
		if !found || candidate.After(end) {
			end, found = candidate, true
		}
	}
	return end, found
}

// Windows returns a copy of the cached enabled windows.
func (g *Gate) Windows() []models.TimeWindow {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.TimeWindow(nil), g.windows...)
}

// Loaded reports whether at least one refresh succeeded.
func (g *Gate) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded
}

func (g *Gate) maybeRefresh(ctx context.Context, now time.Time) {
	g.mu.RLock()
	due := g.lastAttempt.IsZero() || now.Sub(g.lastAttempt) >= g.interval
	g.mu.RUnlock()
	if !due {
		return
	}
	if err := g.refreshAt(ctx, now, false); err != nil {
		g.logger.Warn().Err(err).Msg("schedule refresh failed, keeping previous windows")
	}
}

// Refresh re-reads the windows now, regardless of the interval.
func (g *Gate) Refresh(ctx context.Context) error {
	return g.refreshAt(ctx, time.Now(), true)
}

func (g *Gate) refreshAt(ctx context.Context, now time.Time, force bool) error {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	g.mu.Lock()
	// Another caller may have refreshed while we waited.
	if !force && !g.lastAttempt.IsZero() && now.Sub(g.lastAttempt) < g.interval {
		g.mu.Unlock()
		return nil
	}
	g.lastAttempt = now
	g.mu.Unlock()

	rows, err := g.store.ReadAll(ctx, store.TableSchedule)
	if err != nil {
		telemetry.ScheduleRefreshErrorsTotal.Inc()
		return fmt.Errorf("read schedule: %w", err)
	}
	windows := ParseWindows(rows, g.logger)

	g.mu.Lock()
	g.windows = windows
	g.loaded = true
	g.mu.Unlock()

	g.logger.Debug().Int("windows", len(windows)).Msg("schedule refreshed")
	return nil
}

// ParseWindows reads enabled windows from schedule rows (start, end, enabled).
// The header row is skipped; malformed rows are logged and ignored.
func ParseWindows(rows []models.Row, logger zerolog.Logger) []models.TimeWindow {
	var windows []models.TimeWindow
	for i, row := range rows {
		if i == 0 || row.IsBlank() {
			continue
		}
		if !enabled(row.Cell(3)) {
			continue
		}
		start, err := models.ParseTimeOfDay(row.Cell(1))
		if err != nil {
			logger.Warn().Int("row", i+1).Err(err).Msg("invalid window start")
			continue
		}
		end, err := models.ParseTimeOfDay(row.Cell(2))
		if err != nil {
			logger.Warn().Int("row", i+1).Err(err).Msg("invalid window end")
			continue
		}
		windows = append(windows, models.TimeWindow{Start: start, End: end, Enabled: true})
	}
	return windows
}

func enabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sim", "s", "yes", "y", "true", "1", "on", "x":
		return true
	}
	return false
}
