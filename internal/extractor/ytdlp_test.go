package extractor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind string
		age  int
		coll bool
	}{
		{"video", `{"id":"abc","title":"Song","age_limit":0}`, "video", 0, false},
		{"restricted", `{"id":"abc","title":"Song","age_limit":18,"_type":"video"}`, "video", 18, false},
		{"playlist", `{"id":"PL1","title":"Mix","_type":"playlist"}`, "playlist", 0, true},
		{"multi", `{"id":"m","title":"Parts","_type":"multi_video"}`, "multi_video", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseInfo([]byte(tt.json))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if meta.Kind != tt.kind || meta.AgeLimit != tt.age || meta.IsCollection() != tt.coll {
				t.Fatalf("unexpected metadata %+v", meta)
			}
		})
	}

	if _, err := ParseInfo([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

// fakeBinary writes a shell script standing in for yt-dlp.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestExtractRunsBinary(t *testing.T) {
	bin := fakeBinary(t, `echo '{"id":"xyz","title":"Fake","age_limit":0,"_type":"video"}'`)
	y := New(bin, zerolog.Nop())

	meta, err := y.Extract(context.Background(), "https://youtu.be/xyz")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if meta.ID != "xyz" || meta.Title != "Fake" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestExtractReportsStderr(t *testing.T) {
	bin := fakeBinary(t, "echo 'ERROR: Video unavailable' >&2\nexit 1\n")
	y := New(bin, zerolog.Nop())

	_, err := y.Extract(context.Background(), "https://youtu.be/gone")
	if err == nil || !strings.Contains(err.Error(), "Video unavailable") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestDownloadReturnsPrintedPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "Fake__xyz.mp3")
	bin := fakeBinary(t, "touch '"+out+"'\necho '[info] done'\necho '"+out+"'\n")
	y := New(bin, zerolog.Nop())

	path, err := y.Download(context.Background(), "https://youtu.be/xyz", "ignored.%(ext)s")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != out {
		t.Fatalf("path = %q, want %q", path, out)
	}
}

func TestDownloadWithoutOutput(t *testing.T) {
	bin := fakeBinary(t, "exit 0\n")
	y := New(bin, zerolog.Nop())

	if _, err := y.Download(context.Background(), "https://youtu.be/xyz", "x.%(ext)s"); err != ErrNoOutput {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}
