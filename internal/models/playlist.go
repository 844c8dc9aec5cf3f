/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemStatus tracks a playlist item through download and playback.
type ItemStatus string

const (
	ItemQueued      ItemStatus = "queued"
	ItemDownloading ItemStatus = "downloading"
	ItemReady       ItemStatus = "ready"
	ItemPlaying     ItemStatus = "playing"
	ItemPlayed      ItemStatus = "played"
)

// PlaylistItem is an accepted request travelling from the playlist table to
// the speakers.
type PlaylistItem struct {
	Token     string // unique per enqueue, binds look-ahead announcements
	RowIndex  int    // 1-based playlist row when polled
	RowID     string // id column, used to re-locate the row before writing
	Email     string
	Link      string
	Name      string
	Message   string
	Directive Directive
	Identity  string // canonical media identity, empty until resolved
	Title     string
	Path      string
	Status    ItemStatus
}

// PlaylistItemFromRequest builds a queued item from a playlist row.
func PlaylistItemFromRequest(req Request) PlaylistItem {
	return PlaylistItem{
		Token:     uuid.NewString(),
		RowIndex:  req.Index,
		RowID:     req.ID,
		Email:     req.Email,
		Link:      req.Link,
		Name:      req.Name,
		Message:   req.Message,
		Directive: req.Directive(),
		Status:    ItemQueued,
	}
}

// Key identifies the item for announcement binding.
func (p PlaylistItem) Key() string {
	return p.Token
}

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return TimeOfDay(total), nil
}

// On returns the instant at this time of day on the calendar day of ref.
func (t TimeOfDay) On(ref time.Time) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ref.Location()).Add(time.Duration(t))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// TimeWindow is a daily range during which playback is permitted.
type TimeWindow struct {
	Start   TimeOfDay
	End     TimeOfDay
	Enabled bool
}

// Wraparound reports whether the window spans midnight.
func (w TimeWindow) Wraparound() bool {
	return w.End < w.Start
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w TimeWindow) Contains(t TimeOfDay) bool {
	if w.Wraparound() {
		return t >= w.Start || t <= w.End
	}
	return w.Start <= t && t <= w.End
}

// Metadata is what the extraction collaborator reports about a link without
// downloading it.
type Metadata struct {
	ID       string
	Title    string
	AgeLimit int
	Kind     string // "video", "playlist", "multi_video", ...
}

// IsCollection reports whether the link resolved to more than one item.
func (m Metadata) IsCollection() bool {
	return m.Kind == "playlist" || m.Kind == "multi_video"
}
