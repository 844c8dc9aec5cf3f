/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models holds the records that move through the request tables.
package models

import (
	"strings"
	"unicode"
)

// Column positions shared by every request table, 1-based.
const (
	ColID            = 1
	ColEmail         = 2
	ColName          = 3
	ColMessage       = 4
	ColLink          = 5
	ColStatus        = 6
	ColStatusMessage = 7
	ColObservation   = 8 // History only
)

// RecordWidth is the column count of the active tables. History rows carry
// one extra observation column.
const RecordWidth = 7

// Row is one store row; cells are addressed with 1-based column numbers.
type Row []string

// Cell returns the trimmed value at col, or "" when the row is shorter.
func (r Row) Cell(col int) string {
	if col < 1 || col > len(r) {
		return ""
	}
	return strings.TrimSpace(r[col-1])
}

// Padded returns a copy of the row padded with blanks or trimmed to n columns.
func (r Row) Padded(n int) Row {
	out := make(Row, n)
	copy(out, r)
	return out
}

// With returns a copy of the row with col set to value, growing it if needed.
func (r Row) With(col int, value string) Row {
	n := len(r)
	if col > n {
		n = col
	}
	out := r.Padded(n)
	out[col-1] = value
	return out
}

// IsBlank reports whether every cell is empty or whitespace.
func (r Row) IsBlank() bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Request is a listener submission as read from an active table.
type Request struct {
	Index         int // 1-based row position at read time
	Row           Row
	ID            string
	Email         string
	Name          string
	Message       string
	Link          string
	Status        Status
	StatusMessage string
}

// RequestFromRow parses a row read at the given 1-based index.
func RequestFromRow(index int, row Row) Request {
	return Request{
		Index:         index,
		Row:           row,
		ID:            row.Cell(ColID),
		Email:         row.Cell(ColEmail),
		Name:          row.Cell(ColName),
		Message:       row.Cell(ColMessage),
		Link:          row.Cell(ColLink),
		Status:        ParseStatus(row.Cell(ColStatus)),
		StatusMessage: row.Cell(ColStatusMessage),
	}
}

// Directive reads the announcement directive from the status-message cell.
func (r Request) Directive() Directive {
	return ParseDirective(r.StatusMessage)
}

// Status is the lifecycle value stored in the status column.
type Status string

const (
	StatusNone     Status = ""
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusPlayed   Status = "played"
)

var statusAliases = map[string]Status{
	"pending":              StatusPending,
	"aguardando aprovação": StatusPending,
	"aguardando aprovacao": StatusPending,
	"accepted":             StatusAccepted,
	"aceito":               StatusAccepted,
	"aceita":               StatusAccepted,
	"rejected":             StatusRejected,
	"recusado":             StatusRejected,
	"recusada":             StatusRejected,
	"played":               StatusPlayed,
	"tocado":               StatusPlayed,
	"tocada":               StatusPlayed,
}

// ParseStatus maps a cell value onto a Status. Matching ignores case and
// surrounding whitespace and accepts the legacy spreadsheet vocabulary.
// Unknown values are returned verbatim (lower-cased) so callers can ignore them.
func ParseStatus(s string) Status {
	key := strings.ToLower(strings.TrimSpace(s))
	if st, ok := statusAliases[key]; ok {
		return st
	}
	return Status(key)
}

// Terminal reports whether a moderation record in this status may leave the
// moderation table.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Directive tells the announcer what to read before an item.
type Directive string

const (
	DirectiveNone           Directive = ""
	DirectiveNameAndMessage Directive = "read name and message"
	DirectiveNameOnly       Directive = "read name only"
)

// ParseDirective maps a status-message cell to a directive. Any other
// non-empty text is kept as-is: it still completes the moderation decision
// but produces a bare announcement.
func ParseDirective(s string) Directive {
	key := strings.ToLower(strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " "))
	switch key {
	case "":
		return DirectiveNone
	case "read name and message", "ler nome e mensagem":
		return DirectiveNameAndMessage
	case "read name only", "ler apenas o nome", "ler somente o nome":
		return DirectiveNameOnly
	}
	return Directive(key)
}

// Verdict is the outcome of validating a request.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Accept is the passing verdict.
func Accept() Verdict { return Verdict{Accepted: true} }

// Reject builds a failing verdict with a machine-readable reason.
func Reject(reason string) Verdict { return Verdict{Reason: reason} }

// Rejection and archive reasons written to the store.
const (
	ReasonBlacklisted     = "blacklisted"
	ReasonNameLink        = "name contains link"
	ReasonMessageLink     = "message contains link"
	ReasonNameTooLong     = "name too long"
	ReasonMessageTooLong  = "message too long"
	ReasonUnsupportedLink = "not a supported video link"
	ReasonPlaylist        = "is a playlist"
	ReasonInvalidLink     = "invalid link format"
	ReasonAgeRestricted   = "age restricted"
	ReasonValidationError = "validation error"
	ReasonRejectedByRobot = "rejected by robot"
	ReasonRejectedByHuman = "rejected by moderator"
	ReasonWindowClosed    = "window closed"
)
