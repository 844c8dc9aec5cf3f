/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/jukebot/internal/api"
	"github.com/friendsincode/jukebot/internal/archive"
	"github.com/friendsincode/jukebot/internal/cache"
	"github.com/friendsincode/jukebot/internal/config"
	"github.com/friendsincode/jukebot/internal/db"
	"github.com/friendsincode/jukebot/internal/eventbus"
	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/extractor"
	"github.com/friendsincode/jukebot/internal/logbuffer"
	"github.com/friendsincode/jukebot/internal/media"
	"github.com/friendsincode/jukebot/internal/moderation"
	"github.com/friendsincode/jukebot/internal/playout"
	"github.com/friendsincode/jukebot/internal/poller"
	"github.com/friendsincode/jukebot/internal/schedule"
	"github.com/friendsincode/jukebot/internal/scheduler"
	"github.com/friendsincode/jukebot/internal/speech"
	"github.com/friendsincode/jukebot/internal/store"
	"github.com/friendsincode/jukebot/internal/telemetry"
	"github.com/friendsincode/jukebot/internal/validator"
)

// Mode selects which workers a process runs.
type Mode string

const (
	// ModeServe runs the player side and the robot together.
	ModeServe Mode = "serve"
	// ModeRobot runs only the intake, moderation and hours workers.
	ModeRobot Mode = "robot"
)

// stalePartialAge is how old a leftover partial download must be before the
// startup scan removes it.
const stalePartialAge = time.Hour

// Server bundles HTTP and the engine's workers.
type Server struct {
	cfg        *config.Config
	mode       Mode
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error
	logBuffer  *logbuffer.Buffer

	store     *OpenedStore
	bus       *events.Bus
	schedule  *schedule.Gate
	robot     *scheduler.Service
	monitor   *telemetry.Monitor
	mirror    *eventbus.NATSMirror
	assets    *media.AssetStore
	cache     *media.Cache
	pipeline  *media.Pipeline
	watcher   *media.Watcher
	poller    *poller.Poller
	sequencer *playout.Sequencer
}

// New constructs the server and wires dependencies for mode.
// logBuf may be nil.
func New(ctx context.Context, cfg *config.Config, mode Mode, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	if mode != ModeServe && mode != ModeRobot {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("jukebot-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long-lived.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		mode:      mode,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Zero so the event stream is not cut; the middleware bounds the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies(ctx context.Context) error {
	opened, err := OpenStore(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.store = opened
	s.DeferClose(opened.Close)
	st := opened.Store

	var fetcher media.Fetcher = extractor.New(s.cfg.YTDLPBin, s.logger)
	if s.cfg.MetadataCache {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		cacheCfg.Prefix = s.cfg.RedisPrefix
		cacheCfg.MetadataTTL = s.cfg.MetadataTTL
		metaCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			return err
		}
		s.DeferClose(metaCache.Close)
		fetcher = metaCache.Wrap(fetcher)
	}
	archiver := archive.New(st, s.logger)
	s.schedule = schedule.NewGate(st, s.cfg.Location(), s.cfg.RefreshInterval, s.bus, s.logger)
	sweeper := schedule.NewSweeper(st, s.schedule, archiver, s.bus, s.logger)
	gate := moderation.NewGate(st, validator.New(fetcher), archiver, s.bus, s.logger)

	s.robot = scheduler.New(s.cfg.RobotInterval, s.logger,
		scheduler.Job{Name: "requests", Run: func(ctx context.Context) error {
			_, err := gate.ProcessRequests(ctx)
			return err
		}},
		scheduler.Job{Name: "moderation", Run: func(ctx context.Context) error {
			_, err := gate.ReconcileModeration(ctx)
			return err
		}},
		scheduler.Job{Name: "hours", Run: func(ctx context.Context) error {
			_, err := sweeper.SweepExpired(ctx, time.Now())
			return err
		}},
	)

	monitor, err := telemetry.NewMonitor(s.cfg.MonitorInterval, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("host monitor unavailable")
	} else {
		s.monitor = monitor
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Subject = s.cfg.NATSSubject
		mirror, err := eventbus.NewNATSMirror(natsCfg, s.cfg.InstanceID, s.logger)
		if err != nil {
			// Mirroring is optional; the engine runs without it.
			s.logger.Warn().Err(err).Msg("nats unavailable, events stay local")
		} else {
			s.mirror = mirror
			s.DeferClose(mirror.Close)
		}
	}

	if s.mode == ModeRobot {
		return nil
	}

	s.assets = media.NewAssetStore(s.cfg.AssetRoot, s.logger)
	if err := s.assets.EnsureRoot(); err != nil {
		return err
	}
	if err := s.assets.CheckAccess(ctx); err != nil {
		return fmt.Errorf("asset root not usable: %w", err)
	}
	if _, err := s.assets.Scan(ctx, stalePartialAge, nil); err != nil {
		return fmt.Errorf("scan asset root: %w", err)
	}
	s.cache = media.NewCache()
	n, err := s.cache.Rebuild(ctx, s.assets)
	if err != nil {
		return fmt.Errorf("rebuild media cache: %w", err)
	}
	s.logger.Info().Int("assets", n).Str("root", s.cfg.AssetRoot).Msg("media cache rebuilt")

	ready := playout.NewReadyQueue()
	s.pipeline = media.NewPipeline(fetcher, s.cache, s.assets, ready, s.bus, s.logger)
	s.poller = poller.New(st, s.pipeline, s.cfg.PollBatchSize, s.cfg.PollInterval, s.logger)
	if s.cfg.WatchAssets {
		s.watcher = media.NewWatcher(s.assets, s.cache, s.logger)
	}

	var synth speech.Synthesizer
	if s.cfg.OpenAIAPIKey != "" {
		synth = speech.NewOpenAISynthesizer(speech.OpenAIConfig{
			APIKey:  s.cfg.OpenAIAPIKey,
			BaseURL: s.cfg.OpenAIBaseURL,
			Model:   s.cfg.TTSModel,
			Voices:  s.cfg.TTSVoices,
			Speed:   s.cfg.TTSSpeed,
			TempDir: s.cfg.TempDir,
		}, s.logger)
	} else {
		s.logger.Warn().Msg("no speech API key, items play without announcements")
	}

	seqCfg := playout.DefaultSequencerConfig()
	seqCfg.GatedRetry = s.cfg.GatedRetry
	seqCfg.EmptyRetry = s.cfg.EmptyRetry
	seqCfg.SkipDelay = s.cfg.SkipDelay
	player := playout.NewProcessPlayer(s.cfg.PlayerBin, s.cfg.PlayerArgs, s.logger)
	marker := playout.NewRowMarker(st, 0, s.logger)
	s.sequencer = playout.NewSequencer(player, synth, s.schedule, ready, marker, s.bus, seqCfg, s.logger)

	if s.mirror != nil {
		sub, err := s.mirror.ServeControls(s.sequencer)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats control subject unavailable")
		} else {
			s.DeferClose(sub.Unsubscribe)
		}
	}

	return nil
}

func (s *Server) configureRoutes() {
	deps := api.Deps{
		Schedule: s.schedule,
		Cache:    s.cache,
		Pipeline: s.pipeline,
		Bus:      s.bus,
		Logs:     s.logBuffer,
		Ready:    s.ready,
	}
	// A nil *Sequencer must not become a non-nil interface.
	if s.sequencer != nil {
		deps.Player = s.sequencer
	}
	api.New(deps, s.logger).Routes(s.router)
}

// ready probes the store through the breaker.
func (s *Server) ready(ctx context.Context) error {
	_, err := s.store.Store.ReadRange(ctx, store.TableSchedule, 1, 1)
	return err
}

// Run starts HTTP and every worker of the mode, and blocks until ctx is
// cancelled or a worker fails.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.robot.Run(ctx) })

	if s.monitor != nil {
		g.Go(func() error { return s.monitor.Run(ctx) })
	}
	if s.mirror != nil {
		g.Go(func() error { return s.mirror.Run(ctx, s.bus) })
	}
	if s.store.DB != nil {
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.store.DB)
				}
			}
		})
	}

	if s.mode == ModeServe {
		g.Go(func() error { return s.pipeline.Run(ctx) })
		g.Go(func() error { return s.poller.Run(ctx) })
		g.Go(func() error { return s.sequencer.Run(ctx) })
		if s.watcher != nil {
			g.Go(func() error {
				if err := s.watcher.Run(ctx); err != nil {
					// Watching only speeds up cache updates.
					s.logger.Warn().Err(err).Msg("asset watcher stopped")
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		s.logger.Info().Str("addr", s.httpServer.Addr).Str("mode", string(s.mode)).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Router exposes the HTTP router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
