package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/logbuffer"
	"github.com/friendsincode/jukebot/internal/media"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/playout"
	"github.com/friendsincode/jukebot/internal/schedule"
	"github.com/friendsincode/jukebot/internal/store"
)

type fakePlayer struct {
	state playout.State
	calls []string
	queue []models.PlaylistItem
}

func (f *fakePlayer) Skip() error {
	f.calls = append(f.calls, "skip")
	if f.state != playout.StatePlaying {
		return playout.ErrNoPlayback
	}
	f.state = playout.StateIdle
	return nil
}

func (f *fakePlayer) Pause() error {
	f.calls = append(f.calls, "pause")
	return nil
}

func (f *fakePlayer) Resume() error {
	f.calls = append(f.calls, "resume")
	return errors.New("player crashed")
}

func (f *fakePlayer) Snapshot() playout.Snapshot {
	return playout.Snapshot{State: f.state, Ready: len(f.queue)}
}

func (f *fakePlayer) Queue() []models.PlaylistItem {
	return f.queue
}

func newScheduleGate(t *testing.T) *schedule.Gate {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := store.Bootstrap(ctx, s); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	_ = s.Append(ctx, store.TableSchedule, models.Row{"00:00", "23:59", "yes"})
	return schedule.NewGate(s, time.UTC, time.Minute, nil, zerolog.Nop())
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(deps, zerolog.Nop()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	player := &fakePlayer{state: playout.StatePlaying, queue: []models.PlaylistItem{{Title: "Song B", Name: "Bia", RowIndex: 3}}}
	srv := newTestServer(t, Deps{Player: player, Schedule: newScheduleGate(t), Cache: media.NewCache()})

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Sequencer.State != playout.StatePlaying || body.Sequencer.Ready != 1 {
		t.Fatalf("unexpected sequencer %+v", body.Sequencer)
	}
	if body.Schedule == nil || !body.Schedule.Loaded || len(body.Schedule.Windows) != 1 || body.Schedule.Windows[0].Start != "00:00" {
		t.Fatalf("unexpected schedule %+v", body.Schedule)
	}
	if body.Cache == nil {
		t.Fatal("cache stats missing")
	}

	resp2, err := http.Get(srv.URL + "/api/v1/queue")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	defer resp2.Body.Close()
	var q struct {
		Ready []queueEntry `json:"ready"`
	}
	_ = json.NewDecoder(resp2.Body).Decode(&q)
	if len(q.Ready) != 1 || q.Ready[0].Title != "Song B" || q.Ready[0].Row != 3 {
		t.Fatalf("unexpected queue %+v", q)
	}
}

func TestControls(t *testing.T) {
	player := &fakePlayer{state: playout.StatePlaying}
	srv := newTestServer(t, Deps{Player: player})

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/skip", http.StatusOK},
		{"/api/v1/skip", http.StatusConflict},
		{"/api/v1/pause", http.StatusOK},
		{"/api/v1/resume", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+tt.path, "application/json", nil)
		if err != nil {
			t.Fatalf("post %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
	if strings.Join(player.calls, ",") != "skip,skip,pause,resume" {
		t.Fatalf("unexpected calls %v", player.calls)
	}

	resp, _ := http.Get(srv.URL + "/api/v1/skip")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET skip must be refused, got %d", resp.StatusCode)
	}
}

func TestReadiness(t *testing.T) {
	srv := newTestServer(t, Deps{
		Player: &fakePlayer{},
		Ready:  func(context.Context) error { return errors.New("store down") },
	})
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}

func TestScheduleExport(t *testing.T) {
	srv := newTestServer(t, Deps{Player: &fakePlayer{}, Schedule: newScheduleGate(t), Station: "Radio"})

	resp, err := http.Get(srv.URL + "/api/v1/schedule.ics?start=2026-03-14&days=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".ics") {
		t.Fatalf("content disposition = %q", cd)
	}

	bad, _ := http.Get(srv.URL + "/api/v1/schedule.ics?days=1000")
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("days=1000 status = %d", bad.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	bus := events.NewBus()
	srv := newTestServer(t, Deps{Player: &fakePlayer{}, Bus: bus})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=now_playing"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The subscription is registered after the upgrade; publish until seen.
	go func() {
		for ctx.Err() == nil {
			bus.Publish(events.EventSkipped, events.Payload{})
			bus.Publish(events.EventNowPlaying, events.Payload{"title": "Song A"})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var env events.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != events.EventNowPlaying || env.Payload["title"] != "Song A" {
		t.Fatalf("unexpected event %+v", env)
	}
}

func TestLogs(t *testing.T) {
	logs := logbuffer.New(10)
	logs.Add(logbuffer.LogEntry{Level: "info", Component: "robot", Message: "requests forwarded"})
	logs.Add(logbuffer.LogEntry{Level: "error", Component: "pipeline", Message: "download failed"})
	srv := newTestServer(t, Deps{Logs: logs})

	resp, err := http.Get(srv.URL + "/api/v1/logs?level=error")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Entries []logbuffer.LogEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Message != "download failed" {
		t.Fatalf("unexpected entries %+v", body.Entries)
	}

	bad, _ := http.Get(srv.URL + "/api/v1/logs?limit=zero")
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=zero status = %d", bad.StatusCode)
	}
}
