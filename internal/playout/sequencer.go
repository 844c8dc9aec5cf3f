/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/media"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/speech"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// State is the sequencer's position in its cycle.
type State string

const (
	StateIdle       State = "idle"
	StateGated      State = "gated"
	StateAnnouncing State = "announcing"
	StatePlaying    State = "playing"
)

var allStates = []State{StateIdle, StateGated, StateAnnouncing, StatePlaying}

// Gate answers whether playback may advance.
type Gate interface {
	IsActive(ctx context.Context, now time.Time) bool
	CurrentWindowEnd(ctx context.Context, now time.Time) (time.Time, bool)
}

// ReadyQueue holds items whose asset is local, in playlist order.
type ReadyQueue = media.Queue[models.PlaylistItem]

// NewReadyQueue creates a ready queue reporting its depth.
func NewReadyQueue() *ReadyQueue {
	return media.NewQueue[models.PlaylistItem](func(n int) {
		telemetry.QueueDepth.WithLabelValues("ready").Set(float64(n))
	})
}

// SequencerConfig holds the sequencer's retry delays.
type SequencerConfig struct {
	GatedRetry time.Duration // outside every window
	EmptyRetry time.Duration // nothing ready
	ErrorRetry time.Duration // player failed to start
	SkipDelay  time.Duration // after a skip or a finished item
	Now        func() time.Time
}

// DefaultSequencerConfig returns the standard delays.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		GatedRetry: 60 * time.Second,
		EmptyRetry: 5 * time.Second,
		ErrorRetry: time.Second,
		SkipDelay:  100 * time.Millisecond,
		Now:        time.Now,
	}
}

// announcement is a synthesized clip waiting in a slot.
type announcement struct {
	key  string    // item key for look-ahead clips
	end  time.Time // window end for shutdown clips
	path string
}

// Snapshot is a point-in-time view of the sequencer.
type Snapshot struct {
	State            State                `json:"state"`
	Paused           bool                 `json:"paused"`
	Current          *models.PlaylistItem `json:"current,omitempty"`
	Ready            int                  `json:"ready"`
	NextAnnouncement bool                 `json:"next_announcement"`
	ShutdownNotice   bool                 `json:"shutdown_notice"`
	Generation       uint64               `json:"generation"`
}

// Sequencer plays ready items one at a time, each preceded by its
// announcement, while the schedule gate allows.
//
// Advancement happens only on the Run goroutine, woken by Trigger or by a
// single retry timer. Each started item gets a new generation; completions
// and look-ahead results from an older generation are discarded.
type Sequencer struct {
	player Player
	synth  speech.Synthesizer
	gate   Gate
	ready  *ReadyQueue
	marker Marker
	bus    events.Publisher
	cfg    SequencerConfig
	logger zerolog.Logger

	wake  chan struct{}
	tasks sync.WaitGroup

	mu         sync.Mutex
	state      State
	paused     bool
	current    *models.PlaylistItem
	playback   Playback
	generation uint64
	notified   bool // shutdown notice played for the current inactive period
	retry      *time.Timer

	slotMu          sync.Mutex
	next            *announcement
	shutdown        *announcement
	shutdownPending bool
}

// NewSequencer creates a sequencer. synth and marker may be nil.
func NewSequencer(player Player, synth speech.Synthesizer, gate Gate, ready *ReadyQueue, marker Marker, bus events.Publisher, cfg SequencerConfig, logger zerolog.Logger) *Sequencer {
	def := DefaultSequencerConfig()
	if cfg.GatedRetry <= 0 {
		cfg.GatedRetry = def.GatedRetry
	}
	if cfg.EmptyRetry <= 0 {
		cfg.EmptyRetry = def.EmptyRetry
	}
	if cfg.ErrorRetry <= 0 {
		cfg.ErrorRetry = def.ErrorRetry
	}
	if cfg.SkipDelay <= 0 {
		cfg.SkipDelay = def.SkipDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bus == nil {
		bus = events.Discard{}
	}
	s := &Sequencer{
		player: player,
		synth:  synth,
		gate:   gate,
		ready:  ready,
		marker: marker,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With().Str("component", "sequencer").Logger(),
		wake:   make(chan struct{}, 1),
		state:  StateIdle,
	}
	s.publishState(StateIdle)
	return s
}

// Run drives the sequencer until ctx is cancelled, then stops playback and
// removes pending announcement files.
func (s *Sequencer) Run(ctx context.Context) error {
	s.logger.Info().Msg("sequencer started")
	s.Trigger()
	for {
		select {
		case <-s.wake:
			s.advance(ctx)
		case <-ctx.Done():
			s.shutdownCleanup()
			return nil
		}
	}
}

// Trigger asks the Run loop to try to advance.
func (s *Sequencer) Trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// scheduleLocked replaces the pending retry with one firing after d.
func (s *Sequencer) scheduleLocked(d time.Duration) {
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = time.AfterFunc(d, s.Trigger)
}

func (s *Sequencer) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.publishState(st)
}

func (s *Sequencer) publishState(st State) {
	for _, v := range allStates {
		val := 0.0
		if v == st {
			val = 1
		}
		telemetry.SequencerState.WithLabelValues(string(v)).Set(val)
	}
}

func (s *Sequencer) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused || s.state == StateAnnouncing || s.state == StatePlaying
}

func (s *Sequencer) advance(ctx context.Context) {
	if s.busy() {
		return
	}
	// The gate may read the store; keep it outside the lock.
	now := s.cfg.Now()
	active := s.gate.IsActive(ctx, now)

	s.mu.Lock()
	if s.paused || s.state == StateAnnouncing || s.state == StatePlaying {
		s.mu.Unlock()
		return
	}
	if !active {
		s.setStateLocked(StateGated)
		if !s.notified {
			if clip := s.takeShutdown(); clip != "" {
				s.notified = true
				s.goTask(func() { s.playShutdownNotice(ctx, clip) })
			}
		}
		s.scheduleLocked(s.cfg.GatedRetry)
		s.mu.Unlock()
		s.logger.Debug().Dur("retry_in", s.cfg.GatedRetry).Msg("outside active hours")
		return
	}
	s.notified = false

	item, ok := s.ready.TryPop()
	if !ok {
		s.setStateLocked(StateIdle)
		s.scheduleLocked(s.cfg.EmptyRetry)
		s.mu.Unlock()
		return
	}

	s.generation++
	gen := s.generation
	s.current = &item
	s.setStateLocked(StateAnnouncing)
	s.mu.Unlock()

	if end, ok := s.gate.CurrentWindowEnd(ctx, now); ok {
		s.prepareShutdown(ctx, end)
	}

	s.logger.Info().Str("title", item.Title).Str("name", item.Name).Int("row", item.RowIndex).Msg("preparing item")
	s.announce(ctx, gen, item)

	s.mu.Lock()
	if s.generation != gen {
		// Skipped during the announcement.
		s.mu.Unlock()
		return
	}
	pb, err := s.player.Play(ctx, item.Path)
	if err != nil {
		s.current = nil
		s.setStateLocked(StateIdle)
		s.scheduleLocked(s.cfg.ErrorRetry)
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("path", item.Path).Msg("playback failed to start")
		return
	}
	if s.paused {
		_ = pb.Pause()
	}
	item.Status = models.ItemPlaying
	s.current = &item
	s.playback = pb
	s.setStateLocked(StatePlaying)
	s.mu.Unlock()

	telemetry.PlaybacksTotal.WithLabelValues("media").Inc()
	s.logger.Info().Str("title", item.Title).Str("path", item.Path).Msg("now playing")
	s.bus.Publish(events.EventNowPlaying, events.Payload{
		"title": item.Title,
		"name":  item.Name,
		"link":  item.Link,
		"token": item.Token,
	})

	s.goTask(func() { s.prepareNext(ctx, gen) })
	if s.marker != nil {
		s.goTask(func() {
			if err := s.marker.MarkPlayed(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Str("title", item.Title).Msg("could not mark row played")
			}
		})
	}
	s.goTask(func() {
		select {
		case <-pb.Done():
			s.finished(gen, pb)
		case <-ctx.Done():
		}
	})
}

// announce plays the item's prepared look-ahead clip, or synthesizes one on
// the spot when none matches. Playback proceeds without it on failure.
func (s *Sequencer) announce(ctx context.Context, gen uint64, item models.PlaylistItem) {
	clip := s.takeNext(item.Key())
	if clip == "" {
		text := speech.Immediate(item)
		if text == "" || s.synth == nil {
			return
		}
		path, err := s.synth.Synthesize(ctx, text)
		if err != nil {
			s.logger.Warn().Err(err).Msg("announcement synthesis failed, playing without it")
			return
		}
		clip = path
	}
	defer removeClip(clip, s.logger)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	pb, err := s.player.Play(ctx, clip)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("announcement playback failed")
		return
	}
	if s.paused {
		_ = pb.Pause()
	}
	s.playback = pb
	s.mu.Unlock()

	telemetry.PlaybacksTotal.WithLabelValues("announcement").Inc()
	s.bus.Publish(events.EventAnnouncement, events.Payload{"title": item.Title, "name": item.Name})

	select {
	case <-pb.Done():
	case <-ctx.Done():
		_ = pb.Stop()
	}

	s.mu.Lock()
	if s.playback == pb {
		s.playback = nil
	}
	s.mu.Unlock()
}

// finished handles the end of a media clip.
func (s *Sequencer) finished(gen uint64, pb Playback) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	item := s.current
	s.current = nil
	s.playback = nil
	s.setStateLocked(StateIdle)
	s.scheduleLocked(s.cfg.SkipDelay)
	s.mu.Unlock()

	if item != nil {
		s.logger.Info().Str("title", item.Title).Str("state", string(pb.State())).Msg("item finished")
		s.bus.Publish(events.EventPlaybackEnded, events.Payload{"title": item.Title, "token": item.Token})
	}
}

// prepareNext synthesizes the look-ahead clip for the head of the ready
// queue. A result arriving after the playing item changed is discarded.
func (s *Sequencer) prepareNext(ctx context.Context, gen uint64) {
	if s.synth == nil {
		return
	}
	next, ok := s.ready.Peek()
	if !ok {
		return
	}
	text := speech.LookAhead(next)
	if text == "" {
		return
	}
	path, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", next.Title).Msg("look-ahead synthesis failed")
		return
	}

	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		removeClip(path, s.logger)
		return
	}
	s.setNext(&announcement{key: next.Key(), path: path})
	s.logger.Debug().Str("title", next.Title).Msg("look-ahead announcement ready")
}

// prepareShutdown synthesizes the shutdown notice for a window end unless
// one is ready or being made.
func (s *Sequencer) prepareShutdown(ctx context.Context, end time.Time) {
	if s.synth == nil {
		return
	}
	s.slotMu.Lock()
	if s.shutdownPending || (s.shutdown != nil && s.shutdown.end.Equal(end)) {
		s.slotMu.Unlock()
		return
	}
	s.shutdownPending = true
	s.slotMu.Unlock()

	s.goTask(func() {
		path, err := s.synth.Synthesize(ctx, speech.ShutdownNotice())

		s.slotMu.Lock()
		defer s.slotMu.Unlock()
		s.shutdownPending = false
		if err != nil {
			s.logger.Warn().Err(err).Msg("shutdown notice synthesis failed")
			return
		}
		if s.shutdown != nil {
			removeClip(s.shutdown.path, s.logger)
		}
		s.shutdown = &announcement{end: end, path: path}
		s.logger.Debug().Time("window_end", end).Msg("shutdown notice ready")
	})
}

func (s *Sequencer) playShutdownNotice(ctx context.Context, clip string) {
	defer removeClip(clip, s.logger)
	s.logger.Info().Msg("playing shutdown notice")
	s.bus.Publish(events.EventShutdownNotice, events.Payload{})

	pb, err := s.player.Play(ctx, clip)
	if err != nil {
		s.logger.Warn().Err(err).Msg("shutdown notice playback failed")
		return
	}
	telemetry.PlaybacksTotal.WithLabelValues("shutdown").Inc()
	select {
	case <-pb.Done():
	case <-ctx.Done():
		_ = pb.Stop()
	}
}

// takeNext returns the look-ahead clip if it belongs to key. A clip bound to
// another item is deleted.
func (s *Sequencer) takeNext(key string) string {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	a := s.next
	s.next = nil
	if a == nil {
		return ""
	}
	if a.key != key {
		removeClip(a.path, s.logger)
		return ""
	}
	return a.path
}

func (s *Sequencer) setNext(a *announcement) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.next != nil && s.next.path != a.path {
		removeClip(s.next.path, s.logger)
	}
	s.next = a
}

func (s *Sequencer) discardNext() {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.next != nil {
		removeClip(s.next.path, s.logger)
		s.next = nil
	}
}

func (s *Sequencer) takeShutdown() string {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.shutdown == nil {
		return ""
	}
	path := s.shutdown.path
	s.shutdown = nil
	return path
}

// Skip stops the current item, drops the prepared look-ahead clip and
// advances after a short delay. In-progress downloads are not affected.
func (s *Sequencer) Skip() error {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StateAnnouncing {
		s.mu.Unlock()
		return ErrNoPlayback
	}
	pb := s.playback
	item := s.current
	s.generation++
	s.current = nil
	s.playback = nil
	s.paused = false
	s.setStateLocked(StateIdle)
	s.scheduleLocked(s.cfg.SkipDelay)
	s.mu.Unlock()

	if pb != nil {
		_ = pb.Stop()
	}
	s.discardNext()

	telemetry.SkipsTotal.Inc()
	payload := events.Payload{}
	if item != nil {
		payload["title"] = item.Title
		s.logger.Info().Str("title", item.Title).Msg("item skipped")
	}
	s.bus.Publish(events.EventSkipped, payload)
	return nil
}

// Pause suspends the current clip and holds the queue.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return nil
	}
	if s.playback != nil {
		if err := s.playback.Pause(); err != nil {
			return err
		}
	}
	s.paused = true
	s.bus.Publish(events.EventPaused, events.Payload{})
	return nil
}

// Resume continues a paused clip, or lets the queue advance again.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return nil
	}
	if s.playback != nil {
		if err := s.playback.Resume(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.paused = false
	idle := s.playback == nil
	s.mu.Unlock()

	s.bus.Publish(events.EventResumed, events.Payload{})
	if idle {
		s.Trigger()
	}
	return nil
}

// Snapshot returns the current state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:      s.state,
		Paused:     s.paused,
		Ready:      s.ready.Len(),
		Generation: s.generation,
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	s.mu.Unlock()

	s.slotMu.Lock()
	snap.NextAnnouncement = s.next != nil
	snap.ShutdownNotice = s.shutdown != nil
	s.slotMu.Unlock()
	return snap
}

// Queue returns the ready items in play order.
func (s *Sequencer) Queue() []models.PlaylistItem {
	return s.ready.Snapshot()
}

// goTask runs a one-shot task tracked for shutdown.
func (s *Sequencer) goTask(fn func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn()
	}()
}

func (s *Sequencer) shutdownCleanup() {
	s.mu.Lock()
	if s.retry != nil {
		s.retry.Stop()
	}
	pb := s.playback
	s.playback = nil
	s.generation++
	s.mu.Unlock()

	if pb != nil {
		_ = pb.Stop()
	}
	s.tasks.Wait()

	s.discardNext()
	if clip := s.takeShutdown(); clip != "" {
		removeClip(clip, s.logger)
	}
	s.logger.Info().Msg("sequencer stopped")
}

func removeClip(path string, logger zerolog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("could not remove announcement file")
	}
}
