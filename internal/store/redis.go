/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/friendsincode/jukebot/internal/models"
)

const redisTxRetries = 5

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Prefix:       "jukebot",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisStore keeps each table as a Redis list of JSON encoded rows. Row
// mutations run under WATCH so concurrent writers never clobber each other.
type RedisStore struct {
	client *redis.Client
	prefix string
	forms  map[Table]bool
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig, formTables ...Table) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix, formTables...), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, formTables ...Table) *RedisStore {
	forms := make(map[Table]bool, len(formTables))
	for _, t := range formTables {
		forms[t] = true
	}
	if prefix == "" {
		prefix = "jukebot"
	}
	return &RedisStore{client: client, prefix: prefix, forms: forms}
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(table Table) string {
	return fmt.Sprintf("%s:table:%s", s.prefix, table)
}

func (s *RedisStore) ReadAll(ctx context.Context, table Table) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	raw, err := s.client.LRange(ctx, s.key(table), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return decodeRows(raw)
}

func (s *RedisStore) ReadRange(ctx context.Context, table Table, from, to int) ([]models.Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.key(table), int64(from-1), int64(to-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s rows %d..%d: %w", table, from, to, err)
	}
	return decodeRows(raw)
}

func (s *RedisStore) Append(ctx context.Context, table Table, row models.Row) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key(table), data).Err(); err != nil {
		return fmt.Errorf("append to %s: %w", table, err)
	}
	return nil
}

func (s *RedisStore) UpdateCell(ctx context.Context, table Table, row, col int, value string) error {
	if col < 1 {
		return fmt.Errorf("%w: column %d", ErrRowOutOfRange, col)
	}
	return s.mutate(ctx, table, row, func(current models.Row) (models.Row, bool) {
		return current.With(col, value), false
	})
}

func (s *RedisStore) UpdateRow(ctx context.Context, table Table, row int, values models.Row) error {
	return s.mutate(ctx, table, row, func(models.Row) (models.Row, bool) {
		return values, false
	})
}

func (s *RedisStore) DeleteRow(ctx context.Context, table Table, row int) error {
	if s.forms[table] {
		if _, err := s.ReadRange(ctx, table, row, row); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s row %d", ErrDeleteRefused, table, row)
	}
	return s.mutate(ctx, table, row, func(models.Row) (models.Row, bool) {
		return nil, true
	})
}

func (s *RedisStore) ClearRow(ctx context.Context, table Table, row int) error {
	return s.mutate(ctx, table, row, func(current models.Row) (models.Row, bool) {
		width := len(current)
		if width < models.RecordWidth {
			width = models.RecordWidth
		}
		return make(models.Row, width), false
	})
}

// mutate rewrites or removes one row atomically. Lists have no remove-by-index,
// so deletion swaps in a unique tombstone and removes it in the same MULTI.
func (s *RedisStore) mutate(ctx context.Context, table Table, row int, fn func(models.Row) (models.Row, bool)) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, row)
	}
	key := s.key(table)
	idx := int64(row - 1)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LIndex(ctx, key, idx).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, row)
		}
		if err != nil {
			return err
		}
		current, err := decodeRow(raw)
		if err != nil {
			return err
		}
		next, remove := fn(current)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if remove {
				tombstone := "__deleted__" + uuid.NewString()
				pipe.LSet(ctx, key, idx, tombstone)
				pipe.LRem(ctx, key, 1, tombstone)
				return nil
			}
			data, err := encodeRow(next)
			if err != nil {
				return err
			}
			pipe.LSet(ctx, key, idx, data)
			return nil
		})
		return err
	}

	for i := 0; i < redisTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s row %d: %w", table, row, err)
		}
		return nil
	}
	return fmt.Errorf("update %s row %d: %w", table, row, redis.TxFailedErr)
}

func encodeRow(row models.Row) (string, error) {
	if row == nil {
		row = models.Row{}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(data), nil
}

func decodeRow(raw string) (models.Row, error) {
	var row models.Row
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

func decodeRows(raw []string) ([]models.Row, error) {
	rows := make([]models.Row, 0, len(raw))
	for _, r := range raw {
		row, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
