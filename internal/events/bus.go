/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"time"
)

// EventType enumerates event categories.
type EventType string

const (
	EventRequestAccepted   EventType = "request.accepted"
	EventRequestRejected   EventType = "request.rejected"
	EventModerationPromote EventType = "moderation.promoted"
	EventModerationReject  EventType = "moderation.rejected"
	EventPlaylistSwept     EventType = "playlist.swept"

	EventDownloadStarted  EventType = "download.started"
	EventDownloadFinished EventType = "download.finished"
	EventDownloadFailed   EventType = "download.failed"
	EventItemReady        EventType = "item.ready"

	EventNowPlaying    EventType = "now_playing"
	EventAnnouncement  EventType = "announcement"
	EventPlaybackEnded EventType = "playback.ended"
	EventSkipped       EventType = "playback.skipped"
	EventPaused        EventType = "playback.paused"
	EventResumed       EventType = "playback.resumed"

	EventScheduleChange EventType = "schedule.change"
	EventShutdownNotice EventType = "schedule.shutdown_notice"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Envelope is an event delivered to catch-all subscribers.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload Payload   `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub. Delivery never blocks the
// publisher: slow subscribers miss events.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
	all  []chan Envelope
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll() chan Envelope {
	ch := make(chan Envelope, 32)
	b.mu.Lock()
	b.all = append(b.all, ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	all := append([]chan Envelope(nil), b.all...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
	if len(all) == 0 {
		return
	}
	env := Envelope{Type: eventType, Payload: payload, At: time.Now()}
	for _, ch := range all {
		select {
		case ch <- env:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}

// UnsubscribeAll removes a catch-all subscriber.
func (b *Bus) UnsubscribeAll(ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.all {
		if candidate == ch {
			b.all = append(b.all[:i], b.all[i+1:]...)
			close(ch)
			return
		}
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(EventType, Payload) {}
