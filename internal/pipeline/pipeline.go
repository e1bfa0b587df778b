// Package pipeline wires a root specification's dependency edges through
// the Resolver and then the Downloader, owning stage transitions and
// aggregate reporting the way the orchestrator in spec.md's C7 does.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/git-pkgs/registry-mirror/internal/cache"
	"github.com/git-pkgs/registry-mirror/internal/core"
	"github.com/git-pkgs/registry-mirror/internal/download"
	"github.com/git-pkgs/registry-mirror/internal/resolve"
)

// ProgressEvent is one step's worth of progress, handed to an injected
// Sink. Rendering (progress bars, TTY output) is out of the core's scope;
// the core only ever produces these events.
type ProgressEvent struct {
	Stage    string
	Fraction float64
	Message  string
}

// Sink receives progress events from a running pipeline.
type Sink interface {
	OnProgress(ProgressEvent)
}

// SlogSink is the default Sink: it logs every event through slog instead
// of rendering anything.
type SlogSink struct {
	Log *slog.Logger
}

// OnProgress implements Sink.
func (s SlogSink) OnProgress(e ProgressEvent) {
	if s.Log == nil {
		return
	}
	s.Log.Info(e.Message, "stage", e.Stage, "fraction", e.Fraction)
}

// Summary aggregates one pipeline run for the orchestrator's final
// user-visible report.
type Summary struct {
	Resolved   int
	Downloaded int
	Cached     int
	Failed     int
	PURLs      []string
}

// Pipeline owns the Visited Set and Tarball Cache across stages and
// drives the Resolve -> Download sequence.
type Pipeline struct {
	client  resolve.RegistryClient
	visited *resolve.VisitedSet
	cache   *cache.Cache
	sink    Sink
	log     *slog.Logger
}

// New creates a Pipeline. cache may be nil if no run will request
// DownloadOptions.UseCache.
func New(client resolve.RegistryClient, visited *resolve.VisitedSet, c *cache.Cache, sink Sink, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = SlogSink{Log: log}
	}
	return &Pipeline{client: client, visited: visited, cache: c, sink: sink, log: log}
}

// Run executes Stage 2 (Resolve) then Stage 3 (Download) against roots.
// Stage 1 (Top-N seed acquisition) is the caller's responsibility - it
// belongs to the opaque external producer, so roots must already be
// concrete dependency edges by the time Run is called.
func (p *Pipeline) Run(ctx context.Context, roots []core.Dependency, resolveOpts resolve.Options, downloadOpts download.Options, fetcher download.Fetcher) (Summary, error) {
	p.visited.Reset()

	p.sink.OnProgress(ProgressEvent{Stage: "resolve", Fraction: 0, Message: "resolving dependency graph"})
	resolver := resolve.New(p.client, p.visited, resolveOpts, p.log)
	resolver.OnProgress(func(fraction float64, message string) {
		p.sink.OnProgress(ProgressEvent{Stage: "resolve", Fraction: fraction, Message: message})
	})
	resolved, err := resolver.Resolve(ctx, roots)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve stage: %w", err)
	}
	p.sink.OnProgress(ProgressEvent{Stage: "resolve", Fraction: 1, Message: fmt.Sprintf("resolved %d packages", len(resolved))})

	purls := make([]string, len(resolved))
	for i, pkg := range resolved {
		purls[i] = pkg.PURL
	}

	p.sink.OnProgress(ProgressEvent{Stage: "download", Fraction: 0, Message: "downloading tarballs"})
	downloader := download.New(fetcher, p.cache, downloadOpts, p.log)
	dlSummary, _, err := downloader.Download(ctx, resolved, func(completed, total int) {
		fraction := 1.0
		if total > 0 {
			fraction = float64(completed) / float64(total)
		}
		p.sink.OnProgress(ProgressEvent{Stage: "download", Fraction: fraction, Message: fmt.Sprintf("%d/%d downloaded", completed, total)})
	})
	if err != nil {
		return Summary{}, fmt.Errorf("download stage: %w", err)
	}

	return Summary{
		Resolved:   len(resolved),
		Downloaded: dlSummary.Downloaded,
		Cached:     dlSummary.Cached,
		Failed:     dlSummary.Failed,
		PURLs:      purls,
	}, nil
}
