/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the HTTP control surface of the engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/logbuffer"
	"github.com/friendsincode/jukebot/internal/media"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/playout"
	"github.com/friendsincode/jukebot/internal/schedule"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// Player is the playback surface the API controls.
type Player interface {
	Skip() error
	Pause() error
	Resume() error
	Snapshot() playout.Snapshot
	Queue() []models.PlaylistItem
}

// Schedule is the read side of the schedule gate.
type Schedule interface {
	IsActive(ctx context.Context, now time.Time) bool
	CurrentWindowEnd(ctx context.Context, now time.Time) (time.Time, bool)
	Windows() []models.TimeWindow
	Loaded() bool
	ExportToICal(station string, from time.Time, days int) *schedule.ExportICalResult
}

// Deps holds the components the API reads from. Only Player-backed routes
// require Player; everything else may be nil.
type Deps struct {
	Player   Player
	Schedule Schedule
	Cache    *media.Cache
	Pipeline *media.Pipeline
	Bus      *events.Bus
	Logs     *logbuffer.Buffer
	Ready    func(ctx context.Context) error
	Station  string
}

// API exposes HTTP handlers.
type API struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates the API router wrapper.
func New(deps Deps, logger zerolog.Logger) *API {
	if deps.Station == "" {
		deps.Station = "Jukebot"
	}
	return &API{deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

// Routes registers every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/events", a.handleEvents)
		a.addScheduleRoutes(r)
		if a.deps.Logs != nil {
			r.Get("/logs", a.handleLogs)
		}

		// The robot process runs without a player.
		if a.deps.Player == nil {
			return
		}
		r.Get("/status", a.handleStatus)
		r.Get("/queue", a.handleQueue)
		r.Post("/skip", a.handleSkip)
		r.Post("/pause", a.handlePause)
		r.Post("/resume", a.handleResume)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := a.deps.Ready(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type windowView struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Enabled bool   `json:"enabled"`
}

type scheduleView struct {
	Active    bool         `json:"active"`
	Loaded    bool         `json:"loaded"`
	WindowEnd *time.Time   `json:"window_end,omitempty"`
	Windows   []windowView `json:"windows"`
}

type statusResponse struct {
	Sequencer        playout.Snapshot  `json:"sequencer"`
	Cache            *media.CacheStats `json:"cache,omitempty"`
	DownloadsPending int               `json:"downloads_pending"`
	Schedule         *scheduleView     `json:"schedule,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sequencer: a.deps.Player.Snapshot()}
	if a.deps.Cache != nil {
		stats := a.deps.Cache.Stats()
		resp.Cache = &stats
	}
	if a.deps.Pipeline != nil {
		resp.DownloadsPending = a.deps.Pipeline.Pending()
	}
	if a.deps.Schedule != nil {
		resp.Schedule = a.scheduleStatus(r.Context(), time.Now())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) scheduleStatus(ctx context.Context, now time.Time) *scheduleView {
	s := a.deps.Schedule
	view := &scheduleView{
		Active:  s.IsActive(ctx, now),
		Loaded:  s.Loaded(),
		Windows: []windowView{},
	}
	if end, ok := s.CurrentWindowEnd(ctx, now); ok {
		view.WindowEnd = &end
	}
	for _, win := range s.Windows() {
		view.Windows = append(view.Windows, windowView{Start: win.Start.String(), End: win.End.String(), Enabled: win.Enabled})
	}
	return view
}

type queueEntry struct {
	Title string `json:"title"`
	Name  string `json:"name"`
	Link  string `json:"link"`
	Row   int    `json:"row"`
}

// handleQueue lists items that are downloaded and waiting to play.
func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries := []queueEntry{}
	for _, it := range a.deps.Player.Queue() {
		entries = append(entries, queueEntry{Title: it.Title, Name: it.Name, Link: it.Link, Row: it.RowIndex})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": entries})
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	a.control(w, "skip", a.deps.Player.Skip)
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.control(w, "pause", a.deps.Player.Pause)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.control(w, "resume", a.deps.Player.Resume)
}

func (a *API) control(w http.ResponseWriter, name string, fn func() error) {
	if err := fn(); err != nil {
		if errors.Is(err, playout.ErrNoPlayback) {
			writeError(w, http.StatusConflict, "nothing_playing")
			return
		}
		a.logger.Error().Err(err).Str("command", name).Msg("control command failed")
		writeError(w, http.StatusInternalServerError, "control_failed")
		return
	}
	a.logger.Info().Str("command", name).Msg("control command applied")
	writeJSON(w, http.StatusOK, a.deps.Player.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
