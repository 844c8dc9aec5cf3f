/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Occurrence is one concrete opening of a window.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Occurrences expands the cached windows into concrete openings starting on
// each calendar day in [from, from+days).
func (g *Gate) Occurrences(from time.Time, days int) []Occurrence {
	from = from.In(g.loc)
	windows := g.Windows()

	var out []Occurrence
	for d := 0; d < days; d++ {
		day := from.AddDate(0, 0, d)
		for _, w := range windows {
			start := w.Start.On(day)
			endDay := day
			if w.Wraparound() {
				endDay = day.AddDate(0, 0, 1)
			}
			out = append(out, Occurrence{Start: start, End: w.End.On(endDay)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// ExportToICal renders the playback windows for the next days as a calendar.
func (g *Gate) ExportToICal(station string, from time.Time, days int) *ExportICalResult {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Jukebot//Playback Windows//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Requests\r\n", escapeICalText(station)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	stamp := formatICalTime(time.Now())
	for _, occ := range g.Occurrences(from, days) {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@jukebot\r\n", occ.Start.UTC().Format("20060102T150405Z")))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", stamp))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(occ.Start)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(occ.End)))
		buf.WriteString("SUMMARY:Listener requests on air\r\n")
		buf.WriteString("END:VEVENT\r\n")
	}
	buf.WriteString("END:VCALENDAR\r\n")

	end := from.AddDate(0, 0, days)
	filename := fmt.Sprintf("%s-windows-%s-to-%s.ics",
		slugify(station),
		from.Format("2006-01-02"),
		end.Format("2006-01-02"))

	return &ExportICalResult{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: "text/calendar; charset=utf-8",
	}
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "station"
	}
	return out
}
