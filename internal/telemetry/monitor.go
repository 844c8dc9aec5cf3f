/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is one resource sample of the engine process.
type ProcessStats struct {
	CPUPercent float64
	RSSBytes   uint64
	Threads    int32
}

// Monitor samples the engine's own CPU, memory and thread count.
type Monitor struct {
	proc     *process.Process
	interval time.Duration
	logger   zerolog.Logger
}

// NewMonitor attaches to the current process.
func NewMonitor(interval time.Duration, logger zerolog.Logger) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("attach to process: %w", err)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		proc:     proc,
		interval: interval,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}, nil
}

// Sample reads the current stats and updates the process gauges.
func (m *Monitor) Sample(ctx context.Context) (ProcessStats, error) {
	var stats ProcessStats
	cpu, err := m.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("cpu percent: %w", err)
	}
	mem, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("memory info: %w", err)
	}
	threads, err := m.proc.NumThreadsWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("thread count: %w", err)
	}
	stats = ProcessStats{CPUPercent: cpu, RSSBytes: mem.RSS, Threads: threads}

	ProcessCPUPercent.Set(stats.CPUPercent)
	ProcessRSSBytes.Set(float64(stats.RSSBytes))
	ProcessThreads.Set(float64(stats.Threads))
	return stats, nil
}

// Run samples every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := m.Sample(ctx)
			if err != nil {
				m.logger.Warn().Err(err).Msg("resource sample failed")
				continue
			}
			m.logger.Info().
				Float64("cpu_percent", stats.CPUPercent).
				Float64("rss_mb", float64(stats.RSSBytes)/(1024*1024)).
				Int32("threads", stats.Threads).
				Msg("resource usage")
		}
	}
}
