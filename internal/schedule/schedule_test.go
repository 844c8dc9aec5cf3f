package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/archive"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/store"
)

var errDown = errors.New("store down")

// flakyStore fails schedule reads while down is set.
type flakyStore struct {
	store.Store
	down  bool
	reads int
}

func (f *flakyStore) ReadAll(ctx context.Context, table store.Table) ([]models.Row, error) {
	if table == store.TableSchedule {
		f.reads++
		if f.down {
			return nil, errDown
		}
	}
	return f.Store.ReadAll(ctx, table)
}

func newStore(t *testing.T, windows ...models.Row) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	if err := store.Bootstrap(ctx, s); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, w := range windows {
		if err := s.Append(ctx, store.TableSchedule, w); err != nil {
			t.Fatalf("append window: %v", err)
		}
	}
	return s
}

func at(t *testing.T, loc *time.Location, clock string) time.Time {
	t.Helper()
	tod, err := models.ParseTimeOfDay(clock)
	if err != nil {
		t.Fatalf("parse %q: %v", clock, err)
	}
	return tod.On(time.Date(2026, 3, 14, 0, 0, 0, 0, loc))
}

func TestIsActiveWraparound(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	s := newStore(t, models.Row{"22:00", "03:00", "sim"})
	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())

	tests := []struct {
		clock  string
		active bool
	}{
		{"23:30", true},
		{"01:00", true},
		{"03:00", true},
		{"03:00:01", false},
		{"12:00", false},
		{"22:00", true},
	}
	for _, tt := range tests {
		if got := g.IsActive(context.Background(), at(t, loc, tt.clock)); got != tt.active {
			t.Errorf("IsActive(%s) = %v, want %v", tt.clock, got, tt.active)
		}
	}
}

func TestIsActiveIgnoresDisabledAndMalformedRows(t *testing.T) {
	loc := time.UTC
	s := newStore(t,
		models.Row{"08:00", "10:00", "no"},
		models.Row{"banana", "10:00", "yes"},
		models.Row{"18:00", "20:00", "TRUE"},
	)
	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())

	if g.IsActive(context.Background(), at(t, loc, "09:00")) {
		t.Fatal("disabled window must not activate")
	}
	if !g.IsActive(context.Background(), at(t, loc, "19:00")) {
		t.Fatal("enabled window must activate")
	}
	if n := len(g.Windows()); n != 1 {
		t.Fatalf("expected one usable window, got %d", n)
	}
}

func TestInitialLoadFailureFailsOpen(t *testing.T) {
	loc := time.UTC
	fs := &flakyStore{Store: newStore(t, models.Row{"18:00", "20:00", "sim"}), down: true}
	g := NewGate(fs, loc, time.Minute, nil, zerolog.Nop())

	if !g.IsActive(context.Background(), at(t, loc, "12:00")) {
		t.Fatal("gate must report active before any successful load")
	}
	if g.Loaded() {
		t.Fatal("gate must not be loaded after a failed read")
	}
}

func TestRefreshFailureKeepsPreviousWindows(t *testing.T) {
	loc := time.UTC
	fs := &flakyStore{Store: newStore(t, models.Row{"18:00", "20:00", "sim"})}
	g := NewGate(fs, loc, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	if g.IsActive(ctx, at(t, loc, "12:00")) {
		t.Fatal("12:00 is outside the window")
	}

	fs.down = true
	if g.IsActive(ctx, at(t, loc, "12:05")) {
		t.Fatal("failed refresh must keep the cached windows")
	}
	if !g.IsActive(ctx, at(t, loc, "19:00")) {
		t.Fatal("cached window must still apply")
	}
}

func TestRefreshIsRateLimited(t *testing.T) {
	loc := time.UTC
	fs := &flakyStore{Store: newStore(t, models.Row{"18:00", "20:00", "sim"}), down: true}
	g := NewGate(fs, loc, 5*time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	g.IsActive(ctx, at(t, loc, "12:00"))
	g.IsActive(ctx, at(t, loc, "12:01"))
	g.IsActive(ctx, at(t, loc, "12:04"))
	if fs.reads != 1 {
		t.Fatalf("failed attempts must count toward the interval, got %d reads", fs.reads)
	}
	g.IsActive(ctx, at(t, loc, "12:05"))
	if fs.reads != 2 {
		t.Fatalf("expected a second read after the interval, got %d", fs.reads)
	}
}

func TestCurrentWindowEnd(t *testing.T) {
	loc := time.UTC
	s := newStore(t, models.Row{"22:00", "03:00", "sim"}, models.Row{"08:00", "10:00", "sim"})
	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())
	ctx := context.Background()

	end, ok := g.CurrentWindowEnd(ctx, at(t, loc, "23:00"))
	if !ok {
		t.Fatal("expected a window at 23:00")
	}
	want := time.Date(2026, 3, 15, 3, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Fatalf("end = %v, want %v", end, want)
	}

	end, ok = g.CurrentWindowEnd(ctx, at(t, loc, "01:00"))
	if !ok || !end.Equal(time.Date(2026, 3, 14, 3, 0, 0, 0, loc)) {
		t.Fatalf("after midnight end = %v, %v", end, ok)
	}

	if _, ok := g.CurrentWindowEnd(ctx, at(t, loc, "12:00")); ok {
		t.Fatal("no window contains 12:00")
	}
}

func TestSweepExpired(t *testing.T) {
	loc := time.UTC
	ctx := context.Background()
	s := newStore(t, models.Row{"18:00", "20:00", "sim"})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"p1", "a@x", "A", "", "https://youtu.be/a", "played", "read name only"})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"p2", "b@x", "B", "", "https://youtu.be/b", "accepted", "read name only"})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{"p3", "c@x", "C", "", "https://youtu.be/c", "played", "read name only"})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{})
	_ = s.Append(ctx, store.TablePlaylist, models.Row{})

	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())
	sw := NewSweeper(s, g, archive.New(s, zerolog.Nop()), nil, zerolog.Nop())

	n, err := sw.SweepExpired(ctx, at(t, loc, "19:00"))
	if err != nil || n != 0 {
		t.Fatalf("active window must not sweep: %d, %v", n, err)
	}

	n, err = sw.SweepExpired(ctx, at(t, loc, "21:00"))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected two rows archived, got %d", n)
	}

	rows, _ := s.ReadAll(ctx, store.TablePlaylist)
	if len(rows) != 3 {
		t.Fatalf("expected header, p2 and one sentinel, got %v", rows)
	}
	if rows[1].Cell(models.ColID) != "p2" || !rows[2].IsBlank() {
		t.Fatalf("unexpected playlist after sweep: %v", rows)
	}

	history, _ := s.ReadAll(ctx, store.TableHistory)
	if len(history) != 3 {
		t.Fatalf("expected two history rows, got %v", history)
	}
	if history[1].Cell(models.ColID) != "p1" || history[2].Cell(models.ColID) != "p3" {
		t.Fatalf("history must keep playlist order: %v", history)
	}
	if history[1].Cell(models.ColObservation) != models.ReasonWindowClosed {
		t.Fatalf("unexpected observation %q", history[1].Cell(models.ColObservation))
	}

	// A second sweep finds nothing and keeps the single sentinel.
	if n, err := sw.SweepExpired(ctx, at(t, loc, "21:30")); err != nil || n != 0 {
		t.Fatalf("second sweep: %d, %v", n, err)
	}
	rows, _ = s.ReadAll(ctx, store.TablePlaylist)
	if len(rows) != 3 {
		t.Fatalf("sentinel must not be duplicated: %v", rows)
	}
}

func TestSweepAddsMissingSentinel(t *testing.T) {
	loc := time.UTC
	ctx := context.Background()
	s := newStore(t)
	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())
	sw := NewSweeper(s, g, archive.New(s, zerolog.Nop()), nil, zerolog.Nop())

	if _, err := sw.SweepExpired(ctx, at(t, loc, "12:00")); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	rows, _ := s.ReadAll(ctx, store.TablePlaylist)
	if len(rows) != 2 || !rows[1].IsBlank() {
		t.Fatalf("expected header plus sentinel, got %v", rows)
	}
}

func TestExportToICal(t *testing.T) {
	loc := time.UTC
	s := newStore(t, models.Row{"22:00", "03:00", "sim"})
	g := NewGate(s, loc, time.Hour, nil, zerolog.Nop())
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	from := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)
	occ := g.Occurrences(from, 2)
	if len(occ) != 2 {
		t.Fatalf("expected two occurrences, got %d", len(occ))
	}
	if !occ[0].End.Equal(time.Date(2026, 3, 15, 3, 0, 0, 0, loc)) {
		t.Fatalf("wraparound occurrence must end the next day: %v", occ[0].End)
	}

	res := g.ExportToICal("Radio Comunitária, FM", from, 2)
	body := string(res.Data)
	if !strings.Contains(body, "DTSTART:20260314T220000Z") || !strings.Contains(body, "DTEND:20260315T030000Z") {
		t.Fatalf("unexpected calendar body:\n%s", body)
	}
	if !strings.Contains(body, "X-WR-CALNAME:Radio Comunitária\\, FM Requests") {
		t.Fatalf("calendar name must be escaped:\n%s", body)
	}
	if res.Filename != "radio-comunit-ria-fm-windows-2026-03-14-to-2026-03-16.ics" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
}
