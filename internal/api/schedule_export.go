/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxExportDays = 90

func (a *API) addScheduleRoutes(r chi.Router) {
	r.Get("/schedule", a.handleSchedule)
	r.Get("/schedule.ics", a.handleExportICal)
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if a.deps.Schedule == nil {
		writeError(w, http.StatusNotFound, "schedule_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.scheduleStatus(r.Context(), time.Now()))
}

// handleExportICal exports the playback windows to iCal format.
func (a *API) handleExportICal(w http.ResponseWriter, r *http.Request) {
	if a.deps.Schedule == nil {
		writeError(w, http.StatusNotFound, "schedule_unavailable")
		return
	}

	// Default to next 7 days
	start := time.Now()
	days := 7

	if startStr := r.URL.Query().Get("start"); startStr != "" {
		t, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start")
			return
		}
		start = t
	}
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		n, err := strconv.Atoi(daysStr)
		if err != nil || n < 1 || n > maxExportDays {
			writeError(w, http.StatusBadRequest, "invalid_days")
			return
		}
		days = n
	}

	// Loads the windows when a refresh is due.
	a.deps.Schedule.IsActive(r.Context(), time.Now())
	result := a.deps.Schedule.ExportToICal(a.deps.Station, start, days)

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
