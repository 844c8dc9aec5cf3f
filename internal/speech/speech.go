/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package speech composes on-air announcements and turns them into audio.
package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/friendsincode/jukebot/internal/models"
)

// Synthesizer renders text to a local audio file and returns its path. The
// caller owns the file and removes it after playback.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// LookAhead is read before an item whose announcement was prepared while the
// previous item played. It is empty when the directive asks for silence.
func LookAhead(item models.PlaylistItem) string {
	switch item.Directive {
	case models.DirectiveNameAndMessage:
		return fmt.Sprintf("Up next, a request from %s, who said: %s. Here comes %s.",
			item.Name, strings.TrimSpace(item.Message), item.Title)
	case models.DirectiveNameOnly:
		return fmt.Sprintf("Up next, %s, requested by %s.", item.Title, item.Name)
	}
	return ""
}

// Immediate is read when no prepared announcement matches the item, for
// example for the first item after start-up.
func Immediate(item models.PlaylistItem) string {
	switch item.Directive {
	case models.DirectiveNameAndMessage:
		return fmt.Sprintf("%s says: %s. Playing now: %s.",
			item.Name, strings.TrimSpace(item.Message), item.Title)
	case models.DirectiveNameOnly:
		return fmt.Sprintf("%s requested %s.", item.Name, item.Title)
	}
	return ""
}

// ShutdownNotice is played once when the active window has closed.
func ShutdownNotice() string {
	return "Request hours are over. The player is shutting down."
}
