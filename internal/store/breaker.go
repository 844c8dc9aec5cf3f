/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	cb "github.com/sony/gobreaker"

	"github.com/friendsincode/jukebot/internal/models"
)

// BreakerConfig tunes the store circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        // consecutive transport failures before opening
	OpenTimeout time.Duration // time spent open before probing again
}

// Breaker decorates a Store with a circuit breaker so a flapping backend is
// not hammered by every worker tick. Only transport failures count: refused
// deletes, out-of-range rows and unknown tables are answers, not outages.
type Breaker struct {
	next Store
	cb   *cb.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Store, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger = logger.With().Str("component", "store_breaker").Logger()
	settings := cb.Settings{
		Name:        "store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to cb.State) {
			logger.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrDeleteRefused) ||
				errors.Is(err, ErrRowOutOfRange) ||
				errors.Is(err, ErrUnknownTable) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: cb.NewCircuitBreaker(settings)}
}

// State reports the breaker state for status endpoints.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) ReadAll(ctx context.Context, table Table) ([]models.Row, error) {
	return b.rows(func() ([]models.Row, error) { return b.next.ReadAll(ctx, table) })
}

func (b *Breaker) ReadRange(ctx context.Context, table Table, from, to int) ([]models.Row, error) {
	return b.rows(func() ([]models.Row, error) { return b.next.ReadRange(ctx, table, from, to) })
}

func (b *Breaker) Append(ctx context.Context, table Table, row models.Row) error {
	return b.do(func() error { return b.next.Append(ctx, table, row) })
}

func (b *Breaker) UpdateCell(ctx context.Context, table Table, row, col int, value string) error {
	return b.do(func() error { return b.next.UpdateCell(ctx, table, row, col, value) })
}

func (b *Breaker) UpdateRow(ctx context.Context, table Table, row int, values models.Row) error {
	return b.do(func() error { return b.next.UpdateRow(ctx, table, row, values) })
}

func (b *Breaker) DeleteRow(ctx context.Context, table Table, row int) error {
	return b.do(func() error { return b.next.DeleteRow(ctx, table, row) })
}

func (b *Breaker) ClearRow(ctx context.Context, table Table, row int) error {
	return b.do(func() error { return b.next.ClearRow(ctx, table, row) })
}

func (b *Breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (b *Breaker) rows(fn func() ([]models.Row, error)) ([]models.Row, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	rows, _ := out.([]models.Row)
	return rows, nil
}
