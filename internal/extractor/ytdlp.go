/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package extractor drives yt-dlp for link metadata and audio downloads.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
)

const (
	extractTimeout  = 60 * time.Second
	downloadTimeout = 10 * time.Minute

	// Speech-grade bitrate keeps the library small.
	audioFormat  = "bestaudio[abr<=96]/bestaudio"
	audioQuality = "96K"
)

// ErrNoOutput is returned when yt-dlp exits cleanly without reporting a file.
var ErrNoOutput = errors.New("yt-dlp reported no output file")

// YTDLP runs the yt-dlp binary.
type YTDLP struct {
	bin    string
	logger zerolog.Logger
}

// New creates a yt-dlp runner. An empty bin means "yt-dlp" on PATH.
func New(bin string, logger zerolog.Logger) *YTDLP {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YTDLP{
		bin:    bin,
		logger: logger.With().Str("component", "ytdlp").Logger(),
	}
}

// info is the subset of --dump-single-json output we read.
type info struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	AgeLimit int    `json:"age_limit"`
	Type     string `json:"_type"`
}

// Extract resolves a link's identity, title, age rating and kind without
// downloading it.
func (y *YTDLP) Extract(ctx context.Context, link string) (models.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	out, err := y.run(ctx,
		"--dump-single-json",
		"--skip-download",
		"--flat-playlist",
		"--no-warnings",
		"--",
		link,
	)
	if err != nil {
		return models.Metadata{}, err
	}
	return ParseInfo(out)
}

// ParseInfo decodes yt-dlp JSON metadata.
func ParseInfo(data []byte) (models.Metadata, error) {
	var in info
	if err := json.Unmarshal(data, &in); err != nil {
		return models.Metadata{}, fmt.Errorf("decode yt-dlp metadata: %w", err)
	}
	kind := in.Type
	if kind == "" {
		kind = "video"
	}
	return models.Metadata{
		ID:       in.ID,
		Title:    in.Title,
		AgeLimit: in.AgeLimit,
		Kind:     kind,
	}, nil
}

// Download fetches the audio of link into outputTemplate, converting it to
// mp3, and returns the final file path.
func (y *YTDLP) Download(ctx context.Context, link, outputTemplate string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	out, err := y.run(ctx,
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-f", audioFormat,
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", audioQuality,
		"-o", outputTemplate,
		"--print", "after_move:filepath",
		"--no-simulate",
		"--",
		link,
	)
	if err != nil {
		return "", err
	}
	path := lastLine(out)
	if path == "" {
		return "", ErrNoOutput
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat downloaded file: %w", err)
	}
	y.logger.Debug().Str("link", link).Str("path", path).Msg("download complete")
	return path, nil
}

func (y *YTDLP) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.bin, args...)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

func lastLine(out []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}
