package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bohemian Rhapsody (Official Video)", "Bohemian Rhapsody Official Video"},
		{"  AC/DC -  Thunderstruck!! ", "ACDC Thunderstruck"},
		{"Águas de Março", "Águas de Março"},
		{"___", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if TitleKey("Thunderstruck!") != TitleKey("thunderstruck") {
		t.Fatal("title keys must ignore case and punctuation")
	}
}

func TestParseAssetName(t *testing.T) {
	tests := []struct {
		path     string
		title    string
		identity string
		ok       bool
	}{
		{"/a/T/Thunderstruck__v0_DLXj0.mp3", "Thunderstruck", "v0_DLXj0", true},
		{"/a/T/Take On Me__dQw__4w9WgXcQ.m4a", "Take On Me__dQw", "4w9WgXcQ", true},
		{"/a/X/nothing.mp3", "", "", false},
		{"/a/X/empty__.mp3", "", "", false},
	}
	for _, tt := range tests {
		title, id, ok := ParseAssetName(tt.path)
		if ok != tt.ok || title != tt.title || id != tt.identity {
			t.Errorf("ParseAssetName(%q) = %q, %q, %v", tt.path, title, id, ok)
		}
	}
}

func TestAssetNameRoundTrip(t *testing.T) {
	name := AssetName("Take On Me (Remastered)", "djV11Xbc914")
	title, id, ok := ParseAssetName(name + ".mp3")
	if !ok || id != "djV11Xbc914" || TitleKey(title) != TitleKey("take on me remastered") {
		t.Fatalf("round trip failed: %q -> %q %q %v", name, title, id, ok)
	}
	if AssetName("!!!", "x") != "Unknown__x" {
		t.Fatalf("empty titles fall back to the placeholder: %q", AssetName("!!!", "x"))
	}
}

func writeAsset(t *testing.T, root, title, id, ext string) string {
	t.Helper()
	name := AssetName(title, id)
	dir := filepath.Join(root, Initial(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return path
}

func TestCacheResolve(t *testing.T) {
	root := t.TempDir()
	c := NewCache()
	path := writeAsset(t, root, "Thunderstruck", "v0", ".mp3")
	if !c.Index(path) {
		t.Fatal("index must accept a conventional name")
	}

	if got, res := c.Resolve("v0", "whatever"); res != Hit || got != path {
		t.Fatalf("identity lookup: %q %v", got, res)
	}
	if got, res := c.Resolve("other", "THUNDERSTRUCK!"); res != Hit || got != path {
		t.Fatalf("title fallback: %q %v", got, res)
	}
	if _, res := c.Resolve("new", "New Song"); res != Acquired {
		t.Fatalf("miss must acquire, got %v", res)
	}
	if _, res := c.Resolve("new", "New Song"); res != Duplicate {
		t.Fatalf("second miss must be a duplicate, got %v", res)
	}
	if c.Acquire("new") {
		t.Fatal("acquire must refuse an identity in flight")
	}
	c.Release("new")
	if _, res := c.Resolve("new", "New Song"); res != Acquired {
		t.Fatalf("released identity must be acquirable again, got %v", res)
	}
	if s := c.Stats(); s.InFlight != 1 || s.Identities != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestCacheEvictsMissingFiles(t *testing.T) {
	root := t.TempDir()
	c := NewCache()
	path := writeAsset(t, root, "Gone", "g1", ".mp3")
	c.Index(path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := c.Lookup("g1", "Gone"); ok {
		t.Fatal("lookup must not return a deleted file")
	}
	if s := c.Stats(); s.Identities != 0 || s.Titles != 0 {
		t.Fatalf("stale entries must be evicted: %+v", s)
	}
}

func TestCacheRebuildAndPrune(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "One", "a1", ".mp3")
	writeAsset(t, root, "Two", "b2", ".opus")
	partial := filepath.Join(root, "T", "Three__c3.webm.part")
	if err := os.WriteFile(partial, []byte("x"), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(partial, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	assets := NewAssetStore(root, zerolog.Nop())
	c := NewCache()
	n, err := c.Rebuild(context.Background(), assets)
	if err != nil || n != 2 {
		t.Fatalf("rebuild: %d, %v", n, err)
	}
	if _, ok := c.Lookup("b2", ""); !ok {
		t.Fatal("rebuilt cache must know b2")
	}

	res, err := assets.Scan(context.Background(), time.Hour, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Pruned != 1 || res.Assets != 2 {
		t.Fatalf("unexpected scan result %+v", res)
	}
	if _, err := os.Stat(partial); !os.IsNotExist(err) {
		t.Fatal("stale partial download must be removed")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](nil)
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	if head, _ := q.Peek(); head != 1 {
		t.Fatalf("peek = %d", head)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx)
		if err != nil || got != want {
			t.Fatalf("pop = %d, %v; want %d", got, err, want)
		}
	}
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, err := q.Pop(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("pop on empty queue must wait for ctx, got %v", err)
	}
}

type fakeFetcher struct {
	mu         sync.Mutex
	meta       map[string]models.Metadata
	failDL     map[string]bool
	downloads  int
	extractErr error
}

func (f *fakeFetcher) Extract(_ context.Context, link string) (models.Metadata, error) {
	if f.extractErr != nil {
		return models.Metadata{}, f.extractErr
	}
	return f.meta[link], nil
}

func (f *fakeFetcher) Download(_ context.Context, link, template string) (string, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	if f.failDL[link] {
		return "", errors.New("boom")
	}
	id := f.meta[link].ID
	if id == "" {
		id = "resolved"
	}
	path := strings.Replace(strings.Replace(template, "%(id)s", id, 1), "%(ext)s", "mp3", 1)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type sliceSink struct {
	items []models.PlaylistItem
}

func (s *sliceSink) Push(item models.PlaylistItem) { s.items = append(s.items, item) }

func newPipeline(t *testing.T, f Fetcher) (*Pipeline, *sliceSink, *Cache, string) {
	t.Helper()
	root := t.TempDir()
	sink := &sliceSink{}
	cache := NewCache()
	p := NewPipeline(f, cache, NewAssetStore(root, zerolog.Nop()), sink, nil, zerolog.Nop())
	return p, sink, cache, root
}

func TestPipelineDownloadsOncePerIdentity(t *testing.T) {
	f := &fakeFetcher{meta: map[string]models.Metadata{
		"https://youtu.be/a":                  {ID: "aaa", Title: "Song A"},
		"https://www.youtube.com/watch?v=aaa": {ID: "aaa", Title: "Song A"},
	}}
	p, sink, _, root := newPipeline(t, f)
	ctx := context.Background()

	first := models.PlaylistItem{Token: "1", Link: "https://youtu.be/a"}
	second := models.PlaylistItem{Token: "2", Link: "https://www.youtube.com/watch?v=aaa"}
	if _, err := p.Process(ctx, first); err != nil {
		t.Fatalf("first item: %v", err)
	}
	if _, err := p.Process(ctx, second); err != nil {
		t.Fatalf("second item: %v", err)
	}
	if f.downloads != 1 {
		t.Fatalf("expected one download, got %d", f.downloads)
	}
	if len(sink.items) != 2 || sink.items[0].Path != sink.items[1].Path {
		t.Fatalf("both items must bind to the same asset: %+v", sink.items)
	}
	want := filepath.Join(root, "S", "Song A__aaa.mp3")
	if sink.items[0].Path != want {
		t.Fatalf("path = %q, want %q", sink.items[0].Path, want)
	}
	if sink.items[0].Status != models.ItemReady || sink.items[0].Identity != "aaa" {
		t.Fatalf("unexpected ready item %+v", sink.items[0])
	}
}

func TestPipelineDropsInFlightDuplicate(t *testing.T) {
	f := &fakeFetcher{meta: map[string]models.Metadata{"https://youtu.be/e": {ID: "eee", Title: "Song E"}}}
	p, sink, cache, _ := newPipeline(t, f)
	if !cache.Acquire("eee") {
		t.Fatal("acquire")
	}

	_, err := p.Process(context.Background(), models.PlaylistItem{Link: "https://youtu.be/e"})
	if !errors.Is(err, ErrDuplicateDownload) {
		t.Fatalf("expected ErrDuplicateDownload, got %v", err)
	}
	if f.downloads != 0 || len(sink.items) != 0 {
		t.Fatal("duplicate must not download or become ready")
	}
}

func TestPipelineDropsFailedDownloads(t *testing.T) {
	f := &fakeFetcher{
		meta:   map[string]models.Metadata{"https://youtu.be/b": {ID: "bbb", Title: "Song B"}},
		failDL: map[string]bool{"https://youtu.be/b": true},
	}
	p, sink, cache, _ := newPipeline(t, f)

	if _, err := p.Process(context.Background(), models.PlaylistItem{Link: "https://youtu.be/b"}); err == nil {
		t.Fatal("failed download must drop the item")
	}
	if len(sink.items) != 0 {
		t.Fatal("nothing may reach the ready sink")
	}
	if s := cache.Stats(); s.InFlight != 0 {
		t.Fatalf("in-flight marker leaked: %+v", s)
	}
}

func TestPipelineExtractionFailureUsesPlaceholder(t *testing.T) {
	f := &fakeFetcher{extractErr: errors.New("unavailable")}
	p, sink, cache, root := newPipeline(t, f)

	item, err := p.Process(context.Background(), models.PlaylistItem{Link: "https://youtu.be/c"})
	if len(sink.items) != 1 {
		t.Fatalf("expected one ready item, got %d", len(sink.items))
	}
	if err != nil {
		t.Fatalf("extraction failure must not stop the download: %v", err)
	}
	if item.Title != UnknownTitle || item.Identity != "resolved" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Path != filepath.Join(root, "U", "Unknown__resolved.mp3") {
		t.Fatalf("unexpected path %q", item.Path)
	}
	if _, ok := cache.Lookup("resolved", ""); !ok {
		t.Fatal("downloaded asset must be indexed by the identity in its name")
	}
}

func TestPipelineRun(t *testing.T) {
	f := &fakeFetcher{meta: map[string]models.Metadata{"https://youtu.be/d": {ID: "ddd", Title: "Song D"}}}
	root := t.TempDir()
	ready := NewQueue[models.PlaylistItem](nil)
	p := NewPipeline(f, NewCache(), NewAssetStore(root, zerolog.Nop()), ready, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Enqueue(models.PlaylistItem{Link: "https://youtu.be/d"})
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	item, err := ready.Pop(waitCtx)
	if err != nil {
		t.Fatalf("no ready item: %v", err)
	}
	if item.Identity != "ddd" {
		t.Fatalf("unexpected item %+v", item)
	}
	cancel()
	<-done
}
