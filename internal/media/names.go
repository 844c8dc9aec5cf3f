/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media resolves requested links to playable local assets: the
// on-disk asset library, its two-tier cache and the download pipeline.
package media

import (
	"path/filepath"
	"strings"
	"unicode"
)

// UnknownTitle stands in for a title the extractor could not resolve.
const UnknownTitle = "Unknown"

// identitySeparator splits the normalized title from the identity in asset
// file names. Titles never contain it because normalization drops '_'.
const identitySeparator = "__"

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// IsAudioFile reports whether path has a playable audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// NormalizeTitle keeps letters, digits and single spaces. It is the only
// normalization used both when naming files and when looking titles up.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TitleKey is the case-insensitive lookup key for a title.
func TitleKey(title string) string {
	return strings.ToLower(NormalizeTitle(title))
}

// Initial returns the directory bucket for a normalized title.
func Initial(normalized string) string {
	for _, r := range normalized {
		return string(unicode.ToUpper(r))
	}
	return "_"
}

// AssetName returns "<normalized-title>__<identity>" for an asset file.
func AssetName(title, identity string) string {
	norm := NormalizeTitle(title)
	if norm == "" {
		norm = UnknownTitle
	}
	return norm + identitySeparator + identity
}

// ParseAssetName derives the normalized title and identity from an asset
// path by splitting the base name on the last "__".
func ParseAssetName(path string) (title, identity string, ok bool) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	i := strings.LastIndex(base, identitySeparator)
	if i < 0 {
		return "", "", false
	}
	title = base[:i]
	identity = base[i+len(identitySeparator):]
	if identity == "" {
		return "", "", false
	}
	return title, identity, true
}
