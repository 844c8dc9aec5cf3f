package logbuffer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRingEvictsOldest(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}
	all := b.GetAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("unexpected entries %+v", all)
	}
}

func TestWriterCapturesZerologLines(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	logger.Info().Str("component", "robot").Str("job", "requests").Msg("robot job finished")
	logger.Error().Str("component", "sequencer").Str("title", "Song A").Msg("player failed to start")
	_, _ = NewWriter(b).Write([]byte("not json"))

	all := b.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Component != "robot" || all[0].Fields["job"] != "requests" {
		t.Fatalf("unexpected entry %+v", all[0])
	}
	if all[1].Level != "error" {
		t.Fatalf("level = %q", all[1].Level)
	}
}

func TestQuery(t *testing.T) {
	b := New(10)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b.Add(LogEntry{Timestamp: base, Level: "info", Component: "robot", Message: "requests forwarded"})
	b.Add(LogEntry{Timestamp: base.Add(time.Minute), Level: "warn", Component: "pipeline", Message: "download failed", Fields: map[string]any{"title": "Song A"}})
	b.Add(LogEntry{Timestamp: base.Add(2 * time.Minute), Level: "info", Component: "sequencer", Message: "now playing"})

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"requests forwarded", "download failed", "now playing"}},
		{"level", QueryParams{Level: "warn"}, []string{"download failed"}},
		{"component", QueryParams{Component: "sequencer"}, []string{"now playing"}},
		{"search fields", QueryParams{Search: "song a"}, []string{"download failed"}},
		{"since", QueryParams{Since: base.Add(time.Minute)}, []string{"download failed", "now playing"}},
		{"newest first limited", QueryParams{Descending: true, Limit: 2}, []string{"now playing", "download failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, msg := range tt.want {
				if got[i].Message != msg {
					t.Fatalf("entry %d = %q, want %q", i, got[i].Message, msg)
				}
			}
		})
	}

	stats := b.Stats()
	if stats.Count != 3 || stats.LevelCount["info"] != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
