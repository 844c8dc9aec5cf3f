package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

func seeded(t *testing.T, forms ...store.Table) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(forms...)
	if err := store.Bootstrap(context.Background(), s); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestArchiveAppendsThenDeletes(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"1", "a@b.c", "Ana", "oi", "https://youtu.be/x", "played", "read name only", "extra", "cells"})

	a := New(s, zerolog.Nop())
	if err := a.Archive(ctx, store.TablePlaylist, 2, models.Row{"1", "a@b.c", "Ana", "oi", "https://youtu.be/x", "played", "read name only", "extra"}, models.ReasonWindowClosed); err != nil {
		t.Fatalf("archive: %v", err)
	}

	history, _ := s.ReadAll(ctx, store.TableHistory)
	if len(history) != 2 {
		t.Fatalf("expected one history record, got %d rows", len(history)-1)
	}
	rec := history[1]
	if len(rec) != models.RecordWidth+1 || rec.Cell(models.ColObservation) != models.ReasonWindowClosed {
		t.Fatalf("unexpected history record: %v", rec)
	}
	playlist, _ := s.ReadAll(ctx, store.TablePlaylist)
	if len(playlist) != 1 {
		t.Fatalf("expected source row removed, got %v", playlist)
	}
}

func TestRejectFallsBackToClearOnFormTables(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, store.TableRequests)
	row := models.Row{"1", "a@b.c", "Ana", "oi", "https://vimeo.com/1", "", "note"}
	_ = s.Append(ctx, store.TableRequests, row)

	a := New(s, zerolog.Nop())
	if err := a.Reject(ctx, store.TableRequests, 2, row, models.ReasonUnsupportedLink); err != nil {
		t.Fatalf("reject: %v", err)
	}

	requests, _ := s.ReadAll(ctx, store.TableRequests)
	if len(requests) != 2 || !requests[1].IsBlank() {
		t.Fatalf("expected cleared row in place, got %v", requests)
	}
	history, _ := s.ReadAll(ctx, store.TableHistory)
	rec := history[1]
	if rec.Cell(models.ColStatus) != "rejected" || rec.Cell(models.ColStatusMessage) != "" {
		t.Fatalf("unexpected status columns: %v", rec)
	}
	if got := rec.Cell(models.ColObservation); got != "rejected by robot: not a supported video link" {
		t.Fatalf("unexpected observation: %q", got)
	}
}

type brokenDelete struct {
	*store.MemoryStore
	cleared bool
}

func (b *brokenDelete) DeleteRow(context.Context, store.Table, int) error {
	return errors.New("quota exceeded")
}

func (b *brokenDelete) ClearRow(ctx context.Context, t store.Table, row int) error {
	b.cleared = true
	return b.MemoryStore.ClearRow(ctx, t, row)
}

func TestRemovePropagatesOtherErrors(t *testing.T) {
	ctx := context.Background()
	s := &brokenDelete{MemoryStore: seeded(t)}
	_ = s.Append(ctx, store.TableModeration, models.Row{"1"})

	err := New(s, zerolog.Nop()).Remove(ctx, store.TableModeration, 2)
	if err == nil || errors.Is(err, store.ErrDeleteRefused) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if s.cleared {
		t.Fatal("clear fallback must only run on refused deletes")
	}
}
