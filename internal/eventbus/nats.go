/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors in-process events onto NATS and accepts playback
// control commands from it.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Subject string // events go to <Subject>.<event type>, commands arrive on <Subject>.control.*
	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "jukebot.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Controls is the playback surface reachable through control subjects.
type Controls interface {
	Skip() error
	Pause() error
	Resume() error
}

// NATSMirror forwards bus events to NATS.
type NATSMirror struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NewNATSMirror connects to NATS.
func NewNATSMirror(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSMirror, error) {
	logger = logger.With().Str("component", "nats").Logger()
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("jukebot-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSMirror{
		conn:    conn,
		subject: strings.TrimSuffix(cfg.Subject, "."),
		nodeID:  nodeID,
		logger:  logger,
	}, nil
}

// Run forwards every bus event until ctx is cancelled.
func (m *NATSMirror) Run(ctx context.Context, bus *events.Bus) error {
	ch := bus.SubscribeAll()
	defer bus.UnsubscribeAll(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := marshalNATSMessage(env, m.nodeID)
			if err != nil {
				m.logger.Warn().Err(err).Str("event", string(env.Type)).Msg("encode event")
				continue
			}
			if err := m.conn.Publish(m.subject+"."+string(env.Type), data); err != nil {
				m.logger.Warn().Err(err).Str("event", string(env.Type)).Msg("publish event")
			}
		}
	}
}

// ServeControls subscribes to <subject>.control.{skip,pause,resume}.
func (m *NATSMirror) ServeControls(controls Controls) (*nats.Subscription, error) {
	prefix := m.subject + ".control."
	sub, err := m.conn.Subscribe(prefix+"*", func(msg *nats.Msg) {
		command := strings.TrimPrefix(msg.Subject, prefix)
		known, err := dispatchControl(controls, command)
		if !known {
			m.logger.Warn().Str("command", command).Msg("unknown control command")
			return
		}
		reply := "ok"
		if err != nil {
			reply = err.Error()
			m.logger.Warn().Err(err).Str("command", command).Msg("control command failed")
		} else {
			m.logger.Info().Str("command", command).Msg("control command received")
		}
		if msg.Reply != "" {
			_ = msg.Respond([]byte(reply))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe controls: %w", err)
	}
	return sub, nil
}

// Close drains the connection.
func (m *NATSMirror) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Drain()
}

func dispatchControl(controls Controls, command string) (bool, error) {
	switch command {
	case "skip":
		return true, controls.Skip()
	case "pause":
		return true, controls.Pause()
	case "resume":
		return true, controls.Resume()
	}
	return false, nil
}

func marshalNATSMessage(env events.Envelope, nodeID string) ([]byte, error) {
	return json.Marshal(natsMessage{
		EventType: env.Type,
		Payload:   env.Payload,
		Timestamp: env.At,
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}
