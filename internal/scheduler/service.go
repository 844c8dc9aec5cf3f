/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the robot workers: request intake, moderation
// reconciliation and the active-hours sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/telemetry"
)

// Job is one robot worker.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Service runs jobs on a fixed cadence. A job still running when its next
// tick comes is skipped; a panicking job is recovered and logged. Jobs never
// overlap each other since they share store tables.
type Service struct {
	interval time.Duration
	jobs     []Job
	logger   zerolog.Logger

	runMu sync.Mutex
}

// New creates the robot service.
func New(interval time.Duration, logger zerolog.Logger, jobs ...Job) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		interval: interval,
		jobs:     jobs,
		logger:   logger.With().Str("component", "robot").Logger(),
	}
}

// Run runs every job once, then on the interval until ctx is cancelled. It
// waits for running jobs before returning.
func (s *Service) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("robot has no jobs")
	}
	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(cl))
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))

	var first sync.WaitGroup

	spec := fmt.Sprintf("@every %s", s.interval)
	for _, job := range s.jobs {
		job := job
		wrapped := chain.Then(cron.FuncJob(func() { _ = s.RunJob(ctx, job) }))
		if _, err := c.AddJob(spec, wrapped); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		// First pass right away, through the same chain.
		first.Add(1)
		go func() {
			defer first.Done()
			wrapped.Run()
		}()
	}

	s.logger.Info().Dur("interval", s.interval).Int("jobs", len(s.jobs)).Msg("robot started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	first.Wait()
	s.logger.Info().Msg("robot stopped")
	return nil
}

// RunJob executes one job with tracing and metrics. Errors are logged; the
// job runs again on the next tick.
func (s *Service) RunJob(ctx context.Context, job Job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "robot."+job.Name)
	start := time.Now()
	err := job.Run(ctx)
	telemetry.WorkerTickDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	telemetry.EndSpan(span, err)

	if err != nil {
		telemetry.WorkerTicksTotal.WithLabelValues(job.Name, "error").Inc()
		s.logger.Error().Err(err).Str("job", job.Name).Msg("robot job failed")
		return err
	}
	telemetry.WorkerTicksTotal.WithLabelValues(job.Name, "ok").Inc()
	return nil
}

// cronLogger adapts zerolog to cron's logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
