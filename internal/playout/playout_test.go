package playout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

func TestLocateRow(t *testing.T) {
	rows := []models.Row{
		store.Headers[store.TablePlaylist],
		{"r1", "ana@example.com", "Ana", "", "https://a"},
		{},
		{"", "bia@example.com", "Bia", "", "https://b"},
		{"r4", "ana@example.com", "Ana", "", "https://c"},
	}

	tests := []struct {
		name string
		item models.PlaylistItem
		want int
	}{
		{name: "hint matches", item: models.PlaylistItem{RowIndex: 2, RowID: "r1"}, want: 2},
		{name: "row moved", item: models.PlaylistItem{RowIndex: 2, RowID: "r4"}, want: 5},
		{name: "no id falls back to email and link", item: models.PlaylistItem{RowIndex: 9, Email: "bia@example.com", Link: "https://b"}, want: 4},
		{name: "gone", item: models.PlaylistItem{RowIndex: 2, RowID: "r9"}, want: 0},
		{name: "blank rows never match", item: models.PlaylistItem{RowIndex: 3}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocateRow(rows, tt.item); got != tt.want {
				t.Fatalf("LocateRow = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRowMarkerMarksPlayed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := store.Bootstrap(ctx, s); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"r1", "ana@example.com", "Ana", "", "https://a", "accepted", ""})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"r2", "bia@example.com", "Bia", "", "https://b", "accepted", ""})

	m := NewRowMarker(s, time.Second, zerolog.Nop())
	if err := m.MarkPlayed(ctx, models.PlaylistItem{RowIndex: 2, RowID: "r2"}); err != nil {
		t.Fatalf("mark played: %v", err)
	}

	rows, _ := s.ReadAll(ctx, store.TablePlaylist)
	if got := rows[2].Cell(models.ColStatus); got != string(models.StatusPlayed) {
		t.Fatalf("r2 status = %q", got)
	}
	if got := rows[1].Cell(models.ColStatus); got != "accepted" {
		t.Fatalf("r1 must be untouched, got %q", got)
	}

	err := m.MarkPlayed(ctx, models.PlaylistItem{RowIndex: 2, RowID: "missing"})
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestProcessPlayerEnds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	p := NewProcessPlayer("sh", "", zerolog.Nop())
	pb, err := p.Play(context.Background(), writeScript(t, "exit 0\n"))
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not end")
	}
	if pb.State() != PlaybackEnded {
		t.Fatalf("state = %s", pb.State())
	}
}

func TestProcessPlayerStopPauseResume(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh and job control signals")
	}
	p := NewProcessPlayer("sh", "", zerolog.Nop())
	pb, err := p.Play(context.Background(), writeScript(t, "exec sleep 30\n"))
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	if err := pb.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if pb.State() != PlaybackPaused {
		t.Fatalf("state = %s", pb.State())
	}
	if err := pb.Pause(); !errors.Is(err, ErrNoPlayback) {
		t.Fatalf("second pause: %v", err)
	}
	if err := pb.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if err := pb.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-pb.Done():
	default:
		t.Fatal("stop must wait for the process")
	}
	if pb.State() != PlaybackStopped {
		t.Fatalf("state = %s", pb.State())
	}
}

func TestProcessPlayerMissingClip(t *testing.T) {
	p := NewProcessPlayer("", "", zerolog.Nop())
	if _, err := p.Play(context.Background(), filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Fatal("expected error for missing clip")
	}
}

func TestProcessPlayerGstCommand(t *testing.T) {
	p := NewProcessPlayer("/usr/bin/gst-launch-1.0", "--no-fault", zerolog.Nop())
	args, err := p.command("/music/a b.mp3")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	want := []string{"-q", "--no-fault", "playbin", "uri=file:///music/a%20b.mp3"}
	if len(args) != len(want) {
		t.Fatalf("args = %q", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %q, want %q", args, want)
		}
	}
}
