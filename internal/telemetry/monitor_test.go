package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMonitorSample(t *testing.T) {
	m, err := NewMonitor(time.Second, zerolog.Nop())
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	stats, err := m.Sample(context.Background())
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	if stats.RSSBytes == 0 {
		t.Fatal("expected non-zero resident memory")
	}
	if stats.Threads < 1 {
		t.Fatalf("expected at least one thread, got %d", stats.Threads)
	}
}
