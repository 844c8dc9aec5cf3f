package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

type recordingSink struct {
	items []models.PlaylistItem
}

func (r *recordingSink) Enqueue(item models.PlaylistItem) {
	r.items = append(r.items, item)
}

func (r *recordingSink) links() []string {
	out := make([]string, len(r.items))
	for i, it := range r.items {
		out[i] = it.Link
	}
	return out
}

func playlistRow(id, link, status string) models.Row {
	return models.Row{id, id + "@example.com", "Name " + id, "hi", link, status, "read name only"}
}

func newPlaylist(t *testing.T, rows ...models.Row) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := store.Bootstrap(ctx, s); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, row := range rows {
		if err := s.Append(ctx, store.TablePlaylist, row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return s
}

func TestPollEnqueuesAcceptedInOrder(t *testing.T) {
	s := newPlaylist(t,
		playlistRow("1", "https://youtu.be/a", "accepted"),
		playlistRow("2", "https://youtu.be/b", "played"),
		playlistRow("3", "https://youtu.be/c", "aceito"),
		models.Row{},
	)
	sink := &recordingSink{}
	p := New(s, sink, 2, time.Minute, zerolog.Nop())

	n, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 2 {
		t.Fatalf("enqueued %d, want 2", n)
	}
	if got := sink.links(); got[0] != "https://youtu.be/a" || got[1] != "https://youtu.be/c" {
		t.Fatalf("unexpected order %v", got)
	}
	item := sink.items[0]
	if item.RowIndex != 2 || item.RowID != "1" || item.Directive != models.DirectiveNameOnly || item.Token == "" {
		t.Fatalf("unexpected item %+v", item)
	}
	if p.Cursor() != 4 {
		t.Fatalf("cursor = %d, want 4 (before the sentinel)", p.Cursor())
	}

	// Nothing new: no duplicates.
	if n, _ := p.Poll(context.Background()); n != 0 {
		t.Fatalf("second poll enqueued %d", n)
	}
}

func TestPollResumesAtSentinel(t *testing.T) {
	ctx := context.Background()
	s := newPlaylist(t, playlistRow("1", "https://youtu.be/a", "accepted"), models.Row{})
	sink := &recordingSink{}
	p := New(s, sink, DefaultBatchSize, time.Minute, zerolog.Nop())

	if _, err := p.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// Promotion writes into the sentinel and appends a new one.
	if err := s.UpdateRow(ctx, store.TablePlaylist, 3, playlistRow("2", "https://youtu.be/b", "accepted")); err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = s.Append(ctx, store.TablePlaylist, models.Row{})

	n, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 || sink.items[1].Link != "https://youtu.be/b" || sink.items[1].RowIndex != 3 {
		t.Fatalf("expected row 3 enqueued, got %v", sink.links())
	}
}

func TestPollReadsAcrossBatches(t *testing.T) {
	var rows []models.Row
	for i := 1; i <= 7; i++ {
		rows = append(rows, playlistRow(fmt.Sprint(i), fmt.Sprintf("https://youtu.be/%d", i), "accepted"))
	}
	s := newPlaylist(t, rows...)
	sink := &recordingSink{}
	p := New(s, sink, 3, time.Minute, zerolog.Nop())

	n, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 7 {
		t.Fatalf("enqueued %d, want 7", n)
	}
	if p.Cursor() != 8 {
		t.Fatalf("cursor = %d", p.Cursor())
	}
}

func TestPollRewindsAfterArchival(t *testing.T) {
	ctx := context.Background()
	s := newPlaylist(t,
		playlistRow("1", "https://youtu.be/a", "played"),
		playlistRow("2", "https://youtu.be/b", "accepted"),
		models.Row{},
	)
	sink := &recordingSink{}
	p := New(s, sink, DefaultBatchSize, time.Minute, zerolog.Nop())
	if _, err := p.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// The sweeper archives row 2; row 3 moves up and a new request follows.
	if err := s.DeleteRow(ctx, store.TablePlaylist, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.UpdateRow(ctx, store.TablePlaylist, 3, playlistRow("3", "https://youtu.be/c", "accepted")); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 || sink.links()[1] != "https://youtu.be/c" {
		t.Fatalf("expected only the new row after rewind, got %v", sink.links())
	}
	if sink.items[1].RowIndex != 3 {
		t.Fatalf("row index = %d", sink.items[1].RowIndex)
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) ReadRange(context.Context, store.Table, int, int) ([]models.Row, error) {
	return nil, errors.New("quota exceeded")
}

func TestPollStoreError(t *testing.T) {
	sink := &recordingSink{}
	p := New(failingStore{store.NewMemoryStore()}, sink, 0, 0, zerolog.Nop())
	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p.Cursor() != 1 {
		t.Fatalf("cursor must not move on error, got %d", p.Cursor())
	}
}
