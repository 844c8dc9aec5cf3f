/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoPlayback is returned by controls when nothing is playing.
var ErrNoPlayback = errors.New("no active playback")

// PlaybackState is the state of one clip.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackEnded   PlaybackState = "ended"
	PlaybackStopped PlaybackState = "stopped"
	PlaybackError   PlaybackState = "error"
)

// Playback is one clip being played.
type Playback interface {
	// Done is closed when the clip ends, is stopped or fails.
	Done() <-chan struct{}
	State() PlaybackState
	Stop() error
	Pause() error
	Resume() error
}

// Player starts clips.
type Player interface {
	Play(ctx context.Context, path string) (Playback, error)
}

// ProcessPlayer plays each clip in its own external process, GStreamer's
// gst-launch by default.
type ProcessPlayer struct {
	bin    string
	args   []string
	logger zerolog.Logger
}

// NewProcessPlayer creates a player. For gst-launch binaries the clip is
// played through playbin; any other binary receives extraArgs followed by
// the file path.
func NewProcessPlayer(bin, extraArgs string, logger zerolog.Logger) *ProcessPlayer {
	if bin == "" {
		bin = "gst-launch-1.0"
	}
	return &ProcessPlayer{
		bin:    bin,
		args:   strings.Fields(extraArgs),
		logger: logger.With().Str("component", "player").Logger(),
	}
}

func (p *ProcessPlayer) command(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve clip path: %w", err)
	}
	if strings.HasPrefix(filepath.Base(p.bin), "gst-launch") {
		uri := (&url.URL{Scheme: "file", Path: abs}).String()
		args := append([]string{"-q"}, p.args...)
		return append(args, "playbin", "uri="+uri), nil
	}
	return append(append([]string(nil), p.args...), abs), nil
}

// Play launches the player process for path.
func (p *ProcessPlayer) Play(ctx context.Context, path string) (Playback, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("clip not found: %w", err)
	}
	args, err := p.command(path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player: %w", err)
	}

	proc := &processPlayback{
		cmd:   cmd,
		done:  make(chan struct{}),
		state: PlaybackPlaying,
	}

	// Single goroutine to wait for process completion
	go func() {
		err := cmd.Wait()
		proc.mu.Lock()
		switch {
		case proc.state == PlaybackStopped:
		case err != nil:
			proc.state = PlaybackError
		default:
			proc.state = PlaybackEnded
		}
		proc.mu.Unlock()
		close(proc.done)
		if err != nil {
			p.logger.Debug().Err(err).Str("path", path).Msg("player process exited")
		}
	}()

	p.logger.Debug().Str("path", path).Msg("player started")
	return proc, nil
}

// processPlayback controls one player process.
type processPlayback struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu    sync.Mutex
	state PlaybackState
}

func (p *processPlayback) Done() <-chan struct{} {
	return p.done
}

func (p *processPlayback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop interrupts the process and kills it if it has not exited after five
// seconds.
func (p *processPlayback) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	wasPaused := p.state == PlaybackPaused
	p.state = PlaybackStopped
	p.mu.Unlock()

	if p.cmd.Process == nil {
		return nil
	}
	if wasPaused {
		_ = resumeProcess(p.cmd.Process)
	}
	_ = p.cmd.Process.Signal(os.Interrupt)

	select {
	case <-time.After(5 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	case <-p.done:
	}
	return nil
}

func (p *processPlayback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlaybackPlaying {
		return ErrNoPlayback
	}
	if err := suspendProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("pause player: %w", err)
	}
	p.state = PlaybackPaused
	return nil
}

func (p *processPlayback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlaybackPaused {
		return ErrNoPlayback
	}
	if err := resumeProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("resume player: %w", err)
	}
	p.state = PlaybackPlaying
	return nil
}
