package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/git-pkgs/registry-mirror/fetch"
	"github.com/git-pkgs/registry-mirror/internal/cache"
	"github.com/git-pkgs/registry-mirror/internal/core"
	"github.com/git-pkgs/registry-mirror/internal/download"
	metricspkg "github.com/git-pkgs/registry-mirror/internal/metrics"
	"github.com/git-pkgs/registry-mirror/internal/npm"
	"github.com/git-pkgs/registry-mirror/internal/pipeline"
	"github.com/git-pkgs/registry-mirror/internal/resolve"
	"github.com/git-pkgs/registry-mirror/internal/seed"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Globals are flags shared by every subcommand.
type Globals struct {
	Verbose bool `help:"Enable debug logging" short:"v" env:"REGISTRY_MIRROR_VERBOSE"`
}

// CLI is the root command tree.
type CLI struct {
	Globals
	Mirror  MirrorCmd  `cmd:"" default:"1" help:"Resolve and download packages from the upstream registry"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

// Run implements VersionCmd.
func (cmd *VersionCmd) Run(*Globals) error {
	fmt.Println(Version)
	return nil
}

// MirrorCmd resolves and downloads a root package specification.
type MirrorCmd struct {
	Packages     []string `arg:"" optional:"" help:"Explicit package specs: name, name@range, @scope/name@range"`
	ManifestFile string   `help:"Path to a manifest file (package.json-shaped) to read root dependencies from" env:"REGISTRY_MIRROR_MANIFEST_FILE"`

	RegistryURL       string `help:"Upstream registry base URL" default:"https://registry.npmjs.org" env:"REGISTRY_MIRROR_REGISTRY_URL"`
	CacheDir          string `help:"Directory for the on-disk tarball cache" env:"REGISTRY_MIRROR_CACHE_DIR"`
	DestinationDir    string `help:"Directory to write downloaded tarballs into" required:"" env:"REGISTRY_MIRROR_DESTINATION_DIR"`
	UseCache          bool   `help:"Skip downloads already recorded in the tarball cache" default:"true" env:"REGISTRY_MIRROR_USE_CACHE"`
	IncludeDev        bool   `help:"Follow devDependencies" env:"REGISTRY_MIRROR_INCLUDE_DEV"`
	IncludePeer       bool   `help:"Follow peerDependencies" env:"REGISTRY_MIRROR_INCLUDE_PEER"`
	IncludeOptional   bool   `help:"Follow optionalDependencies" env:"REGISTRY_MIRROR_INCLUDE_OPTIONAL"`
	MetricsEnabled    bool   `help:"Expose Prometheus metrics" env:"REGISTRY_MIRROR_METRICS_ENABLED"`
	MetricsListenAddr string `help:"Address for the metrics endpoint" default:":9090" env:"REGISTRY_MIRROR_METRICS_LISTEN_ADDR"`
}

// Run implements MirrorCmd.
func (cmd *MirrorCmd) Run(globals *Globals) error {
	opts := &slog.HandlerOptions{}
	if globals.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	if len(cmd.Packages) == 0 && cmd.ManifestFile == "" {
		return fmt.Errorf("BAD_INPUT: either package specs or --manifest-file must be given")
	}

	roots, err := cmd.rootDependencies()
	if err != nil {
		return fmt.Errorf("BAD_INPUT: %w", err)
	}

	if cmd.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving default cache directory: %w", err)
		}
		cmd.CacheDir = filepath.Join(home, ".cache", "registry-mirror")
	}
	if err := os.MkdirAll(cmd.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	var tarballCache *cache.Cache
	if cmd.UseCache {
		tarballCache, err = cache.Open(filepath.Join(cmd.CacheDir, "tarballs.db"))
		if err != nil {
			return fmt.Errorf("opening tarball cache: %w", err)
		}
		defer tarballCache.Close()
	}

	var m metricspkg.Metrics
	if cmd.MetricsEnabled {
		m, err = metricspkg.New()
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		go func() {
			if err := metricspkg.ListenAndServe(cmd.MetricsListenAddr); err != nil {
				log.Error("metrics server exited", "addr", cmd.MetricsListenAddr, "error", err)
			}
		}()
	}

	client := npm.New(cmd.RegistryURL, nil)
	visited := resolve.NewVisitedSet()
	sink := pipeline.SlogSink{Log: log}
	p := pipeline.New(client, visited, tarballCache, sink, log)

	fetcher := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithUserAgent("registry-mirror/" + Version)))

	ctx := context.Background()
	summary, err := p.Run(ctx, roots, resolve.Options{
		IncludeDev:      cmd.IncludeDev,
		IncludePeer:     cmd.IncludePeer,
		IncludeOptional: cmd.IncludeOptional,
	}, download.Options{
		UseCache:       cmd.UseCache,
		DestinationDir: cmd.DestinationDir,
		RegistryURL:    cmd.RegistryURL,
	}, fetcher)
	if err != nil {
		return err
	}

	m.RecordResolve(ctx, int64(summary.Resolved))
	m.RecordDownload(ctx, int64(summary.Downloaded), int64(summary.Cached), int64(summary.Failed))
	log.Debug("resolved package identities", "purls", summary.PURLs)

	if summary.Downloaded == 0 && summary.Cached == 0 {
		fmt.Println("no packages fetched")
		return nil
	}
	fmt.Printf("resolved %d packages: %d downloaded, %d already cached, %d failed\n",
		summary.Resolved, summary.Downloaded, summary.Cached, summary.Failed)
	return nil
}

func (cmd *MirrorCmd) rootDependencies() ([]core.Dependency, error) {
	if cmd.ManifestFile != "" {
		data, err := os.ReadFile(cmd.ManifestFile)
		if err != nil {
			return nil, fmt.Errorf("reading manifest file: %w", err)
		}
		return seed.ParseManifestFile(data)
	}
	return seed.ParseExplicitList(cmd.Packages)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("registry-mirror"),
		kong.Description("Mirrors packages from an upstream npm-shaped registry into a local directory."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
