/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package validator decides whether a listener request may go to human
// moderation.
package validator

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/friendsincode/jukebot/internal/models"
)

const (
	MaxNameLength    = 32
	MaxMessageLength = 72
	AdultAgeLimit    = 18
)

var linkPattern = regexp.MustCompile(`(?i)(https?://|www\.|\.[a-z]{2,})`)

// ContainsLink reports whether text carries something that looks like a URL.
func ContainsLink(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return linkPattern.MatchString(text)
}

// Extractor resolves link metadata without downloading.
type Extractor interface {
	Extract(ctx context.Context, link string) (models.Metadata, error)
}

// Blacklist is a normalized set of banned submitter emails.
type Blacklist map[string]struct{}

// NewBlacklist builds a blacklist from the first column of rows. The first
// row is the header and is skipped.
func NewBlacklist(rows []models.Row) Blacklist {
	bl := make(Blacklist)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if email := normalizeEmail(row.Cell(1)); email != "" {
			bl[email] = struct{}{}
		}
	}
	return bl
}

// Contains reports whether email is banned.
func (b Blacklist) Contains(email string) bool {
	_, ok := b[normalizeEmail(email)]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validator applies the request checks in a fixed order and stops at the
// first failure.
type Validator struct {
	extractor Extractor
}

// New creates a validator. extractor may be nil, in which case the metadata
// checks are skipped.
func New(extractor Extractor) *Validator {
	return &Validator{extractor: extractor}
}

// Validate returns the verdict for req.
func (v *Validator) Validate(ctx context.Context, blacklist Blacklist, req models.Request) models.Verdict {
	if blacklist.Contains(req.Email) {
		return models.Reject(models.ReasonBlacklisted)
	}
	if ContainsLink(req.Name) {
		return models.Reject(models.ReasonNameLink)
	}
	if ContainsLink(req.Message) {
		return models.Reject(models.ReasonMessageLink)
	}
	if utf8.RuneCountInString(req.Name) > MaxNameLength {
		return models.Reject(models.ReasonNameTooLong)
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return models.Reject(models.ReasonMessageTooLong)
	}
	if verdict := CheckLink(req.Link); !verdict.Accepted {
		return verdict
	}
	if v.extractor == nil {
		return models.Accept()
	}

	meta, err := v.extractor.Extract(ctx, req.Link)
	if err != nil {
		return models.Reject(fmt.Sprintf("%s: %v", models.ReasonValidationError, err))
	}
	if meta.AgeLimit >= AdultAgeLimit {
		return models.Reject(models.ReasonAgeRestricted)
	}
	if meta.IsCollection() {
		return models.Reject(models.ReasonPlaylist)
	}
	return models.Accept()
}

// CheckLink runs the offline link checks: platform domain, no collection
// markers, and one of the single item shapes with a non-empty identifier.
func CheckLink(link string) models.Verdict {
	u, err := parseLink(link)
	if err != nil {
		return models.Reject(models.ReasonUnsupportedLink)
	}
	host := strings.ToLower(u.Hostname())
	if !isPlatformHost(host) {
		return models.Reject(models.ReasonUnsupportedLink)
	}

	query := u.Query()
	path := strings.ToLower(u.Path)
	if _, ok := query["list"]; ok || strings.Contains(path, "playlist") {
		return models.Reject(models.ReasonPlaylist)
	}

	if host == "youtu.be" || strings.HasSuffix(host, ".youtu.be") {
		if strings.Trim(u.Path, "/") == "" {
			return models.Reject(models.ReasonInvalidLink)
		}
		return models.Accept()
	}

	if strings.Contains(path, "/watch") && strings.TrimSpace(query.Get("v")) != "" {
		return models.Accept()
	}
	for _, prefix := range []string{"/shorts/", "/live/"} {
		if strings.HasPrefix(path, prefix) {
			segments := strings.Split(u.Path, "/")
			if len(segments) >= 3 && strings.TrimSpace(segments[2]) != "" {
				return models.Accept()
			}
		}
	}
	return models.Reject(models.ReasonInvalidLink)
}

func parseLink(link string) (*url.URL, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("empty link")
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	return url.Parse(link)
}

func isPlatformHost(host string) bool {
	for _, domain := range []string{"youtube.com", "youtu.be"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
