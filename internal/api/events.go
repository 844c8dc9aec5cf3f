/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

const (
	eventPingInterval = 15 * time.Second
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams bus events to a websocket client. The optional
// "types" query parameter is a comma separated allow list.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.deps.Bus == nil {
		writeError(w, http.StatusNotFound, "events_unavailable")
		return
	}
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	allow := parseEventTypes(r.URL.Query().Get("types"))
	sub := a.deps.Bus.SubscribeAll()
	defer a.deps.Bus.UnsubscribeAll(sub)

	// Reads are only needed to notice the client closing.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := a.writeEvent(ctx, conn, map[string]string{"type": "ping"}); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case env, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "shutting down")
				return
			}
			if len(allow) > 0 && !allow[env.Type] {
				continue
			}
			if err := a.writeEvent(ctx, conn, env); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func parseEventTypes(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	out := make(map[events.EventType]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[events.EventType(part)] = true
		}
	}
	return out
}
