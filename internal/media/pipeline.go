/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/events"
	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// ErrDuplicateDownload is returned for an item whose identity is already
// being downloaded.
var ErrDuplicateDownload = errors.New("download already in flight")

// MetadataExtractor resolves a link without downloading it.
type MetadataExtractor interface {
	Extract(ctx context.Context, link string) (models.Metadata, error)
}

// Downloader materializes the audio of a link. outputTemplate may contain
// the downloader's own placeholders; the final path is returned.
type Downloader interface {
	Download(ctx context.Context, link, outputTemplate string) (string, error)
}

// Fetcher is the extraction and download collaborator.
type Fetcher interface {
	MetadataExtractor
	Downloader
}

// ReadySink receives items whose asset is local.
type ReadySink interface {
	Push(item models.PlaylistItem)
}

// Pipeline is the single download consumer. It turns queued playlist items
// into ready items bound to a local asset.
type Pipeline struct {
	fetcher Fetcher
	cache   *Cache
	assets  *AssetStore
	work    *Queue[models.PlaylistItem]
	ready   ReadySink
	bus     events.Publisher
	logger  zerolog.Logger
}

// NewPipeline creates a download pipeline.
func NewPipeline(f Fetcher, cache *Cache, assets *AssetStore, ready ReadySink, bus events.Publisher, logger zerolog.Logger) *Pipeline {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Pipeline{
		fetcher: f,
		cache:   cache,
		assets:  assets,
		work: NewQueue[models.PlaylistItem](func(n int) {
			telemetry.QueueDepth.WithLabelValues("work").Set(float64(n))
		}),
		ready:  ready,
		bus:    bus,
		logger: logger.With().Str("component", "download").Logger(),
	}
}

// Enqueue adds an item to the work queue.
func (p *Pipeline) Enqueue(item models.PlaylistItem) {
	item.Status = models.ItemQueued
	p.work.Push(item)
}

// Pending returns the number of items waiting for the consumer.
func (p *Pipeline) Pending() int {
	return p.work.Len()
}

// Run consumes the work queue until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info().Msg("download pipeline started")
	for {
		item, err := p.work.Pop(ctx)
		if err != nil {
			p.logger.Info().Msg("download pipeline stopping")
			return nil
		}
		_, _ = p.Process(ctx, item)
	}
}

// Process resolves one item and hands it to the ready sink. Duplicates and
// failed downloads are dropped and reported as errors.
func (p *Pipeline) Process(ctx context.Context, item models.PlaylistItem) (models.PlaylistItem, error) {
	logger := p.logger.With().Str("link", item.Link).Str("name", item.Name).Logger()

	meta, err := p.fetcher.Extract(ctx, item.Link)
	if err != nil {
		logger.Warn().Err(err).Msg("metadata extraction failed, continuing with placeholder")
		meta = models.Metadata{Title: UnknownTitle}
	}
	if meta.Title == "" {
		meta.Title = UnknownTitle
	}
	item.Identity = meta.ID
	item.Title = meta.Title

	key := meta.ID
	if key == "" {
		key = "link:" + item.Link
	}

	path, res := p.cache.Resolve(key, meta.Title)
	switch res {
	case Hit:
		telemetry.DownloadsTotal.WithLabelValues("cache").Inc()
		logger.Info().Str("title", item.Title).Str("path", path).Msg("cache hit")
		return p.markReady(item, path)

	case Duplicate:
		telemetry.DownloadsTotal.WithLabelValues("duplicate").Inc()
		logger.Warn().Str("identity", meta.ID).Msg("download already in flight, dropping duplicate")
		return item, ErrDuplicateDownload
	}

	item.Status = models.ItemDownloading
	p.bus.Publish(events.EventDownloadStarted, events.Payload{"link": item.Link, "title": item.Title, "identity": item.Identity})

	path, err = p.download(ctx, item, meta)
	if err != nil {
		p.cache.Release(key)
		telemetry.DownloadsTotal.WithLabelValues("failed").Inc()
		if !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("title", item.Title).Msg("download failed, dropping item")
		}
		p.bus.Publish(events.EventDownloadFailed, events.Payload{"link": item.Link, "title": item.Title, "error": err.Error()})
		return item, fmt.Errorf("download %s: %w", item.Link, err)
	}
	p.cache.Complete(key, path)

	if item.Identity == "" {
		if _, id, ok := ParseAssetName(path); ok {
			item.Identity = id
		}
	}
	telemetry.DownloadsTotal.WithLabelValues("downloaded").Inc()
	logger.Info().Str("title", item.Title).Str("path", path).Msg("download finished")
	p.bus.Publish(events.EventDownloadFinished, events.Payload{"link": item.Link, "title": item.Title, "path": path})
	return p.markReady(item, path)
}

func (p *Pipeline) download(ctx context.Context, item models.PlaylistItem, meta models.Metadata) (string, error) {
	template, err := p.assets.OutputTemplate(meta.Title, meta.ID)
	if err != nil {
		return "", err
	}
	start := time.Now()
	path, err := p.fetcher.Download(ctx, item.Link, template)
	telemetry.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if !fileExists(path) {
		return "", fmt.Errorf("downloaded file missing: %s", path)
	}
	return path, nil
}

func (p *Pipeline) markReady(item models.PlaylistItem, path string) (models.PlaylistItem, error) {
	item.Path = path
	item.Status = models.ItemReady
	p.ready.Push(item)
	p.bus.Publish(events.EventItemReady, events.Payload{"title": item.Title, "name": item.Name, "token": item.Token})
	return item, nil
}
