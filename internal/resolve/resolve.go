// Package resolve implements the concurrent dependency graph walk: given a
// root manifest, it produces a flat, de-duplicated sequence of resolved
// (name, version, isLatest) packages by recursively expanding a package's
// dependency edges against a registry client.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/git-pkgs/registry-mirror/internal/coerce"
	"github.com/git-pkgs/registry-mirror/internal/core"
	"github.com/git-pkgs/registry-mirror/internal/npm"
)

// Resolved is one element of the Resolver's output: a concrete package
// coordinate plus whether it is the package's dist-tags.latest. PURL is
// its rendered Package URL, the canonical identity carried into progress
// events and the pipeline's final summary.
type Resolved struct {
	Name     string
	Version  string
	IsLatest bool
	PURL     string
}

// ProgressFunc receives the resolve stage's §4.5 progress signal.
// Fraction is the cumulative share of root edges whose entire subtree has
// completed; it only ever advances when a root edge finishes, never on an
// inner completion. Message describes whatever just happened.
type ProgressFunc func(fraction float64, message string)

func noopProgress(float64, string) {}

// RegistryClient is the subset of npm.Client the Resolver depends on. A
// narrow interface so tests can supply a fake without an HTTP server.
type RegistryClient interface {
	Manifest(ctx context.Context, name, version string) (npm.Manifest, error)
	IsLatest(ctx context.Context, name, version string) bool
}

// Options gates which non-runtime dependency categories are followed.
type Options struct {
	IncludeDev      bool
	IncludePeer     bool
	IncludeOptional bool
}

// maxSiblingConcurrency bounds how many manifest fetches run at once. The
// Resolver holds one semaphore of this weight, shared by every parent's
// edge expansion, so the bound applies to the whole pass.
const maxSiblingConcurrency = 16

// Resolver walks a dependency graph against a RegistryClient, emitting a
// flat de-duplicated sequence of Resolved packages.
type Resolver struct {
	client   RegistryClient
	visited  *VisitedSet
	opts     Options
	log      *slog.Logger
	progress ProgressFunc

	sem *semaphore.Weighted

	rootTotal int64
	rootDone  int64
	// progressMu orders progress callbacks so the reported fraction never
	// goes backwards.
	progressMu sync.Mutex

	mu  sync.Mutex
	out []Resolved
}

// New creates a Resolver. visited is reset by the caller (the orchestrator
// resets it at the start of every invocation, per the Visited Set's
// lifecycle) — Resolve does not reset it itself, so a Resolver can be
// reused across partial passes if a caller chooses to.
func New(client RegistryClient, visited *VisitedSet, opts Options, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		client:   client,
		visited:  visited,
		opts:     opts,
		log:      log,
		progress: noopProgress,
		sem:      semaphore.NewWeighted(maxSiblingConcurrency),
	}
}

// OnProgress registers fn to receive every subsequent Resolve call's §4.5
// progress signal. Passing nil disables reporting (the default).
func (r *Resolver) OnProgress(fn ProgressFunc) {
	if fn == nil {
		fn = noopProgress
	}
	r.progress = fn
}

// Resolve expands every root edge in parallel and returns the flat
// de-duplicated sequence once the whole tree has settled. Sibling order
// within the output is nondeterministic; a parent always precedes its
// descendants.
//
// Progress is reported per §4.5: each root edge's full subtree completion
// advances the fraction by 1/len(roots); every other completion - a root's
// own manifest landing, or any descendant resolving - reports the current
// aggregate fraction without advancing it.
func (r *Resolver) Resolve(ctx context.Context, roots []core.Dependency) ([]Resolved, error) {
	r.mu.Lock()
	r.out = nil
	r.mu.Unlock()

	atomic.StoreInt64(&r.rootTotal, int64(len(roots)))
	atomic.StoreInt64(&r.rootDone, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		root := root
		g.Go(func() error {
			if err := r.expand(gctx, root.Name, root.Requirements); err != nil {
				return err
			}
			r.completeRoot(root.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out, nil
}

// completeRoot advances the resolve stage's fraction by 1/rootTotal, the
// only point at which it moves forward.
func (r *Resolver) completeRoot(name string) {
	total := atomic.LoadInt64(&r.rootTotal)
	if total == 0 {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	done := atomic.AddInt64(&r.rootDone, 1)
	r.progress(float64(done)/float64(total), fmt.Sprintf("completed root edge %s", name))
}

// reportInner emits a progress event carrying the current aggregate
// fraction without advancing it, per §4.5's inner-level contract.
func (r *Resolver) reportInner(message string) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	total := atomic.LoadInt64(&r.rootTotal)
	var fraction float64
	if total > 0 {
		fraction = float64(atomic.LoadInt64(&r.rootDone)) / float64(total)
	}
	r.progress(fraction, message)
}

// expand resolves one edge (name, rangeString): coerces it to a query
// version, fetches its manifest (with the registry client's own
// TARGET_MISSING/NOT_FOUND fallback), de-duplicates against the visited
// set, emits the package, determines isLatest, and recurses into its own
// edges. A fetch failure is logged and the edge resolves to nothing; it
// never aborts the caller's pass (spec's leniency policy).
func (r *Resolver) expand(ctx context.Context, name, rangeString string) error {
	query := coerce.Query(rangeString)

	// Pre-fetch dedup: optimistic, keyed on the query version. Does not
	// guarantee absence of duplicates since query may differ from the
	// concrete version the registry resolves it to (see post-fetch dedup
	// below) - this is an accepted inefficiency, not a bug.
	if r.visited.Has(name, query) {
		return nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	manifest, err := r.client.Manifest(ctx, name, query)
	r.sem.Release(1)
	if err != nil {
		r.log.Warn("manifest fetch failed, skipping edge", "name", name, "range", rangeString, "query", query, "error", err)
		return nil
	}

	// Post-fetch dedup: authoritative, keyed on the concrete version the
	// registry actually returned. TestAndSet makes this the linearizable
	// point where concurrent siblings racing on the same concrete pair
	// agree on exactly one winner.
	if !r.visited.TestAndSet(name, manifest.Version) {
		return nil
	}

	isLatest := r.isLatest(ctx, name, manifest.Version, query)
	purl := core.NewPURL(manifest.Name, manifest.Version)

	r.mu.Lock()
	r.out = append(r.out, Resolved{Name: manifest.Name, Version: manifest.Version, IsLatest: isLatest, PURL: purl})
	r.mu.Unlock()

	r.reportInner(fmt.Sprintf("resolved %s", purl))

	return r.expandChildren(ctx, manifest)
}

// isLatest implements step 7: a literal "latest" query short-circuits to
// true without a packument fetch; otherwise the packument is consulted and
// a fetch failure degrades to false rather than propagating an error.
func (r *Resolver) isLatest(ctx context.Context, name, concreteVersion, query string) bool {
	if query == coerce.Latest {
		return true
	}
	return r.client.IsLatest(ctx, name, concreteVersion)
}

// expandChildren fetches the manifest's edges (per Options) in parallel.
// Each child's own subtree is expanded inside that child's goroutine, so
// the subtrees of siblings expand concurrently; recursion is not
// sequential across manifests. The only ordering kept is that a package
// is emitted before any of its descendants.
func (r *Resolver) expandChildren(ctx context.Context, manifest npm.Manifest) error {
	edges := Edges(manifest, r.opts)

	g, gctx := errgroup.WithContext(ctx)
	for _, edge := range edges {
		edge := edge
		g.Go(func() error {
			return r.expand(gctx, edge.Name, edge.Requirements)
		})
	}
	return g.Wait()
}

// Edges composes a manifest's dependency map per step 1 of the algorithm:
// the union of dependencies, optionalDependencies, peerDependencies, and
// devDependencies (each gated by opts), with later categories
// overwriting earlier ones by name. This application order gives
// dev > peer > optional > runtime priority on a name collision, matching
// the registry's observed behavior; preserved as specified even though it
// may look like a bug: a devDependency range silently shadows a runtime
// range of the same name.
func Edges(m npm.Manifest, opts Options) []core.Dependency {
	merged := make(map[string]core.Dependency, len(m.Dependencies))
	for name, rng := range m.Dependencies {
		merged[name] = core.Dependency{Name: name, Requirements: rng, Scope: core.Runtime}
	}
	if opts.IncludeOptional {
		for name, rng := range m.OptionalDependencies {
			merged[name] = core.Dependency{Name: name, Requirements: rng, Scope: core.Optional, Optional: true}
		}
	}
	if opts.IncludePeer {
		for name, rng := range m.PeerDependencies {
			merged[name] = core.Dependency{Name: name, Requirements: rng, Scope: core.Peer}
		}
	}
	if opts.IncludeDev {
		for name, rng := range m.DevDependencies {
			merged[name] = core.Dependency{Name: name, Requirements: rng, Scope: core.Development}
		}
	}

	edges := make([]core.Dependency, 0, len(merged))
	for _, dep := range merged {
		edges = append(edges, dep)
	}
	return edges
}
