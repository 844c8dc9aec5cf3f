/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/jukebot/internal/telemetry"
)

const startTimeKey = "jukebot:start_time"

// RegisterCallbacks records statement latency and errors for every store
// operation.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{
			op:     "query",
			before: func(n string) error { return cb.Query().Before("gorm:query").Register(n, beforeCallback) },
			after:  func(n string) error { return cb.Query().After("gorm:query").Register(n, afterCallback("query")) },
		},
		{
			op:     "create",
			before: func(n string) error { return cb.Create().Before("gorm:create").Register(n, beforeCallback) },
			after:  func(n string) error { return cb.Create().After("gorm:create").Register(n, afterCallback("create")) },
		},
		{
			op:     "update",
			before: func(n string) error { return cb.Update().Before("gorm:update").Register(n, beforeCallback) },
			after:  func(n string) error { return cb.Update().After("gorm:update").Register(n, afterCallback("update")) },
		},
		{
			op:     "delete",
			before: func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, beforeCallback) },
			after:  func(n string) error { return cb.Delete().After("gorm:delete").Register(n, afterCallback("delete")) },
		},
	}
	for _, s := range steps {
		if err := s.before("telemetry:before_" + s.op); err != nil {
			return err
		}
		if err := s.after("telemetry:after_" + s.op); err != nil {
			return err
		}
	}
	return nil
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation).Inc()
		}
	}
}

// UpdateConnectionMetrics publishes the pool's open connection count.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
}
