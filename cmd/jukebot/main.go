/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/jukebot/internal/config"
	"github.com/friendsincode/jukebot/internal/logbuffer"
	"github.com/friendsincode/jukebot/internal/logging"
	"github.com/friendsincode/jukebot/internal/server"
	"github.com/friendsincode/jukebot/internal/telemetry"
	"github.com/friendsincode/jukebot/internal/version"
)

var (
	logger    zerolog.Logger
	cfg       *config.Config
	logCloser io.Closer
	logBuf    *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "jukebot",
	Short: "Jukebot - unattended community radio request engine",
	Long:  "Jukebot takes listener song requests from a shared table, moderates them, downloads the audio and plays it back with a spoken announcement during the station's active hours.",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player and the robot",
	Long:  "Poll the playlist, download and announce requests, play them back, and run the intake, moderation and hours workers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(server.ModeServe)
	},
}

var robotCmd = &cobra.Command{
	Use:   "robot",
	Short: "Run only the intake, moderation and hours workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(server.ModeRobot)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, robotCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(cfg.LogBufferSize)
	logger, logCloser = logging.SetupWithFile(cfg.Environment, cfg.LogFile, logbuffer.NewWriter(logBuf))
	return nil
}

func run(mode server.Mode) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", version.Version).Str("mode", string(mode)).Msg("Jukebot starting")

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "jukebot",
		ServiceVersion: version.Version,
		InstanceID:     cfg.InstanceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(ctx, cfg, mode, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	runErr := srv.Run(ctx)
	if runErr == nil {
		logger.Info().Msg("shutting down gracefully...")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Jukebot stopped")
	return runErr
}
