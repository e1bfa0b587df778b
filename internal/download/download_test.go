package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/registry-mirror/internal/cache"
	"github.com/git-pkgs/registry-mirror/internal/resolve"

	"github.com/git-pkgs/registry-mirror/fetch"
)

type fakeFetcher struct {
	fail map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Artifact, error) {
	if f.fail[url] {
		return nil, errors.New("simulated fetch failure")
	}
	return &fetch.Artifact{Body: io.NopCloser(bytes.NewReader([]byte("tarball-bytes")))}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		pkg  resolve.Resolved
		want string
	}{
		{resolve.Resolved{Name: "left-pad", Version: "1.3.0", IsLatest: true}, "left-pad-1.3.0-latest.tgz"},
		{resolve.Resolved{Name: "c", Version: "1.0.0", IsLatest: false}, "c-1.0.0.tgz"},
		{resolve.Resolved{Name: "@scope/foo", Version: "1.2.3", IsLatest: true}, "@scope-foo-1.2.3-latest.tgz"},
	}
	for _, tt := range tests {
		if got := Filename(tt.pkg); got != tt.want {
			t.Errorf("Filename(%+v) = %q, want %q", tt.pkg, got, tt.want)
		}
	}
}

func TestDownloader_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	d := New(&fakeFetcher{}, nil, Options{DestinationDir: dir, RegistryURL: "https://registry.npmjs.org"}, discardLogger())

	resolved := []resolve.Resolved{
		{Name: "left-pad", Version: "1.3.0", IsLatest: true},
	}

	summary, results, err := d.Download(context.Background(), resolved, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if summary.Downloaded != 1 || summary.Failed != 0 {
		t.Fatalf("Download() summary = %+v, want 1 downloaded", summary)
	}
	if len(results) != 1 {
		t.Fatalf("Download() results = %+v, want 1", results)
	}

	path := filepath.Join(dir, "left-pad-1.3.0-latest.tgz")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file %s to exist: %v", path, err)
	}
}

func TestDownloader_PerItemFailureIsRejection(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{fail: map[string]bool{
		"https://registry.npmjs.org/broken/-/broken-1.0.0.tgz": true,
	}}
	d := New(fetcher, nil, Options{DestinationDir: dir, RegistryURL: "https://registry.npmjs.org"}, discardLogger())

	resolved := []resolve.Resolved{
		{Name: "broken", Version: "1.0.0"},
		{Name: "ok", Version: "1.0.0"},
	}

	summary, results, err := d.Download(context.Background(), resolved, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if summary.Downloaded != 1 || summary.Failed != 1 {
		t.Fatalf("Download() summary = %+v, want 1 downloaded, 1 failed", summary)
	}
	if len(results) != 1 {
		t.Fatalf("Download() results = %+v, want only the successful element", results)
	}
}

func TestDownloader_UsesCache(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.Open(filepath.Join(t.TempDir(), "tarballs.db"))
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	defer c.Close()

	if err := c.Add("y", "1.0.0"); err != nil {
		t.Fatalf("cache.Add() error = %v", err)
	}

	d := New(&fakeFetcher{}, c, Options{UseCache: true, DestinationDir: dir, RegistryURL: "https://registry.npmjs.org"}, discardLogger())

	resolved := []resolve.Resolved{
		{Name: "y", Version: "1.0.0"},
		{Name: "z", Version: "1.0.0"},
	}

	summary, results, err := d.Download(context.Background(), resolved, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if summary.Cached != 1 {
		t.Fatalf("Download() summary = %+v, want 1 cached", summary)
	}
	if summary.Downloaded != 1 {
		t.Fatalf("Download() summary = %+v, want 1 downloaded", summary)
	}
	if len(results) != 1 || results[0].Package.Name != "z" {
		t.Fatalf("Download() results = %+v, want only z written", results)
	}

	if _, err := os.Stat(filepath.Join(dir, "y-1.0.0.tgz")); !os.IsNotExist(err) {
		t.Fatal("cached package y should not have been written")
	}

	exists, err := c.Exists("z", "1.0.0")
	if err != nil {
		t.Fatalf("cache.Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("z should have been added to the tarball cache after download")
	}
}

func TestDownloader_EmptyResultRemovesEmptyDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "dest")

	fetcher := &fakeFetcher{fail: map[string]bool{
		"https://registry.npmjs.org/only/-/only-1.0.0.tgz": true,
	}}
	d := New(fetcher, nil, Options{DestinationDir: dir, RegistryURL: "https://registry.npmjs.org"}, discardLogger())

	resolved := []resolve.Resolved{{Name: "only", Version: "1.0.0"}}

	summary, results, err := d.Download(context.Background(), resolved, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if summary.Downloaded != 0 || len(results) != 0 {
		t.Fatalf("Download() = %+v / %+v, want zero successes", summary, results)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("empty destination directory should have been removed")
	}
}
