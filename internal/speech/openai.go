/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/friendsincode/jukebot/internal/telemetry"
)

// ErrNoText is returned for empty announcements.
var ErrNoText = errors.New("nothing to synthesize")

// OpenAIConfig configures the OpenAI speech endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voices  []string // one is picked at random per announcement
	Speed   float64
	TempDir string
}

// speechClient is the part of the OpenAI client we use.
type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAISynthesizer synthesizes announcements with the OpenAI speech API.
type OpenAISynthesizer struct {
	client speechClient
	cfg    OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAISynthesizer creates a synthesizer. BaseURL allows compatible
// self-hosted endpoints.
func NewOpenAISynthesizer(cfg OpenAIConfig, logger zerolog.Logger) *OpenAISynthesizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAISynthesizer(openai.NewClientWithConfig(clientCfg), cfg, logger)
}

func newOpenAISynthesizer(client speechClient, cfg OpenAIConfig, logger zerolog.Logger) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = []string{string(openai.VoiceNova)}
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &OpenAISynthesizer{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "speech").Logger(),
	}
}

// Synthesize writes the spoken text to a new mp3 file in the temp dir.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	voice := s.cfg.Voices[rand.Intn(len(s.cfg.Voices))]

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		telemetry.SynthesisFailuresTotal.Inc()
		return "", fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	path := filepath.Join(s.cfg.TempDir, "tts_"+uuid.NewString()+".mp3")
	f, err := os.Create(path)
	if err != nil {
		telemetry.SynthesisFailuresTotal.Inc()
		return "", fmt.Errorf("create speech file: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		os.Remove(path)
		telemetry.SynthesisFailuresTotal.Inc()
		return "", fmt.Errorf("write speech file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		telemetry.SynthesisFailuresTotal.Inc()
		return "", fmt.Errorf("close speech file: %w", err)
	}

	s.logger.Debug().Str("voice", voice).Str("path", path).Int("chars", len(text)).Msg("announcement synthesized")
	return path, nil
}
