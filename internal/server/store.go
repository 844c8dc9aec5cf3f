/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/jukebot/internal/config"
	"github.com/friendsincode/jukebot/internal/db"
	"github.com/friendsincode/jukebot/internal/store"
)

// OpenedStore is a store plus whatever owns its connection.
type OpenedStore struct {
	Store store.Store
	DB    *gorm.DB // set for SQL backends
	close func() error
}

// Close releases the backend connection.
func (o *OpenedStore) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// OpenStore connects the configured backend, wraps it in the circuit breaker
// and makes sure every table has its header row.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*OpenedStore, error) {
	formTables := make([]store.Table, 0, len(cfg.FormTables))
	for _, name := range cfg.FormTables {
		formTables = append(formTables, store.Table(name))
	}

	opened := &OpenedStore{}
	var backend store.Store
	switch {
	case cfg.StoreBackend == config.StoreMemory:
		logger.Warn().Msg("using the in-memory store, requests are lost on restart")
		backend = store.NewMemoryStore(formTables...)
	case cfg.StoreBackend.IsSQL():
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(database); err != nil {
			_ = db.Close(database)
			return nil, err
		}
		opened.DB = database
		opened.close = func() error { return db.Close(database) }
		backend = store.NewSQLStore(database, formTables...)
	case cfg.StoreBackend == config.StoreRedis:
		rcfg := store.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		rcfg.Prefix = cfg.RedisPrefix
		rs, err := store.NewRedisStore(ctx, rcfg, formTables...)
		if err != nil {
			return nil, err
		}
		opened.close = rs.Close
		backend = rs
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	opened.Store = store.NewBreaker(backend, store.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger)

	if err := store.Bootstrap(ctx, opened.Store); err != nil {
		_ = opened.Close()
		return nil, fmt.Errorf("bootstrap store: %w", err)
	}
	logger.Info().Str("backend", string(cfg.StoreBackend)).Msg("store ready")
	return opened, nil
}
