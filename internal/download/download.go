// Package download implements the bounded-concurrency tarball downloader:
// given the resolver's flat package set, it writes each package's tarball
// into a destination directory, honoring the durable tarball cache and
// emitting per-item progress.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/git-pkgs/registry-mirror/fetch"
	"github.com/git-pkgs/registry-mirror/internal/cache"
	"github.com/git-pkgs/registry-mirror/internal/resolve"
)

// maxConcurrency bounds in-flight tarball fetches. The reference behavior
// is unbounded (one request per resolved package, relying on the HTTP
// client's connection pool) but production use SHOULD cap it; 20 matches
// the publish pipeline's own default.
const maxConcurrency = 20

// Fetcher is the subset of fetch.FetcherInterface the Downloader needs.
// Satisfied by both *fetch.Fetcher and *fetch.CircuitBreakerFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Artifact, error)
}

// Options configures a download pass.
type Options struct {
	UseCache       bool
	DestinationDir string
	RegistryURL    string
}

// Result associates one resolved package with its download outcome.
// Err is nil on success.
type Result struct {
	Package  resolve.Resolved
	Filename string
	Err      error
}

// Summary aggregates a download pass for reporting.
type Summary struct {
	Downloaded int
	Cached     int
	Failed     int
}

// ProgressFunc is called after each settlement with (completed, total)
// across the packages actually attempted (cached-skipped entries are not
// counted, per spec).
type ProgressFunc func(completed, total int)

// Downloader writes resolved packages' tarballs to disk.
type Downloader struct {
	fetcher Fetcher
	cache   *cache.Cache
	opts    Options
	log     *slog.Logger
	sem     *semaphore.Weighted
}

// New creates a Downloader. cache may be nil if opts.UseCache is false.
func New(fetcher Fetcher, c *cache.Cache, opts Options, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{
		fetcher: fetcher,
		cache:   c,
		opts:    opts,
		log:     log,
		sem:     semaphore.NewWeighted(maxConcurrency),
	}
}

// Filename computes the bit-exact output filename for a resolved package:
// <name-with-slash-replaced-by-hyphen>-<version>[-latest].tgz.
func Filename(pkg resolve.Resolved) string {
	name := strings.ReplaceAll(pkg.Name, "/", "-")
	if pkg.IsLatest {
		return fmt.Sprintf("%s-%s-latest.tgz", name, pkg.Version)
	}
	return fmt.Sprintf("%s-%s.tgz", name, pkg.Version)
}

// Download writes every package in resolved to opts.DestinationDir,
// skipping cache hits when opts.UseCache is set, and reports progress via
// onProgress (may be nil). A per-item error does not abort the batch: it
// is logged and counted in Summary.Failed, and the returned results hold
// only the packages that were written successfully.
func (d *Downloader) Download(ctx context.Context, resolved []resolve.Resolved, onProgress ProgressFunc) (Summary, []Result, error) {
	var summary Summary
	var toFetch []resolve.Resolved

	if d.opts.UseCache && d.cache != nil {
		for _, pkg := range resolved {
			exists, err := d.cache.Exists(pkg.Name, pkg.Version)
			if err != nil {
				return summary, nil, fmt.Errorf("checking tarball cache for %s@%s: %w", pkg.Name, pkg.Version, err)
			}
			if exists {
				summary.Cached++
				continue
			}
			toFetch = append(toFetch, pkg)
		}
	} else {
		toFetch = resolved
	}

	if err := os.MkdirAll(d.opts.DestinationDir, 0o755); err != nil {
		return summary, nil, fmt.Errorf("creating destination directory: %w", err)
	}

	results := make([]Result, len(toFetch))
	var completed int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, pkg := range toFetch {
		i, pkg := i, pkg
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.sem.Acquire(ctx, 1); err != nil {
				results[i] = Result{Package: pkg, Err: err}
				return
			}
			defer d.sem.Release(1)

			filename, err := d.downloadOne(ctx, pkg)
			results[i] = Result{Package: pkg, Filename: filename, Err: err}

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			if onProgress != nil {
				onProgress(n, len(toFetch))
			}
		}()
	}
	wg.Wait()

	kept := results[:0]
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
			d.log.Warn("download failed", "name", r.Package.Name, "version", r.Package.Version, "error", r.Err)
			continue
		}
		summary.Downloaded++
		kept = append(kept, r)
	}

	if len(kept) == 0 {
		if empty, _ := dirEmpty(d.opts.DestinationDir); empty {
			_ = os.Remove(d.opts.DestinationDir)
		}
	}

	return summary, kept, nil
}

// downloadOne fetches and writes a single package's tarball, updating the
// tarball cache on success. It streams to a temporary file and renames it
// into place so a failed write never leaves a partial tarball under the
// final filename.
func (d *Downloader) downloadOne(ctx context.Context, pkg resolve.Resolved) (string, error) {
	info := fetch.ResolveArtifact(d.opts.RegistryURL, pkg.Name, pkg.Version)
	filename := Filename(pkg)
	finalPath := filepath.Join(d.opts.DestinationDir, filename)
	tempPath := finalPath + ".tmp"

	artifact, err := d.fetcher.Fetch(ctx, info.URL)
	if err != nil {
		return "", fmt.Errorf("fetching tarball for %s@%s: %w", pkg.Name, pkg.Version, err)
	}
	defer artifact.Body.Close()

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tempPath, err)
	}
	if _, err := io.Copy(f, artifact.Body); err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("writing %s: %w", tempPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("renaming into place %s: %w", finalPath, err)
	}

	if d.opts.UseCache && d.cache != nil {
		if err := d.cache.Add(pkg.Name, pkg.Version); err != nil {
			d.log.Warn("tarball cache update failed", "name", pkg.Name, "version", pkg.Version, "error", err)
		}
	}

	return filename, nil
}

func dirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
