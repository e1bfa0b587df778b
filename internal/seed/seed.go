// Package seed turns a root specification - an explicit package list, a
// manifest file, or the external Top-N popularity producer - into the
// root dependency edges the resolver starts from.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/git-pkgs/registry-mirror/internal/core"
)

// ParseExplicitList parses raw specs of the form "name", "name@range", or
// "@scope/name@range" into root dependency edges. A bare name with no "@"
// resolves against the literal tag "latest".
func ParseExplicitList(specs []string) ([]core.Dependency, error) {
	deps := make([]core.Dependency, 0, len(specs))
	for _, spec := range specs {
		dep, err := parseSpec(spec)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// parseSpec splits one raw spec into name and range, accounting for a
// leading "@" scope marker that must not be mistaken for the name/range
// separator. A "pkg:npm/..." spec is parsed as a Package URL instead,
// letting callers pass around the same canonical identity the resolver
// and downloader log against.
func parseSpec(spec string) (core.Dependency, error) {
	if spec == "" {
		return core.Dependency{}, fmt.Errorf("empty package spec")
	}

	if strings.HasPrefix(spec, "pkg:") {
		return parsePURLSpec(spec)
	}

	scoped := strings.HasPrefix(spec, "@")
	body := spec
	if scoped {
		body = spec[1:]
	}

	idx := strings.LastIndex(body, "@")
	if idx < 0 {
		if body == "" {
			return core.Dependency{}, fmt.Errorf("invalid package spec %q", spec)
		}
		return core.Dependency{Name: spec, Requirements: "latest"}, nil
	}

	name := body[:idx]
	rng := body[idx+1:]
	if scoped {
		name = "@" + name
	}
	if name == "" || rng == "" {
		return core.Dependency{}, fmt.Errorf("invalid package spec %q", spec)
	}
	return core.Dependency{Name: name, Requirements: rng}, nil
}

// parsePURLSpec turns a "pkg:npm/..." Package URL into a root dependency
// edge, using the PURL's version when present and falling back to
// "latest" for a version-less package PURL.
func parsePURLSpec(spec string) (core.Dependency, error) {
	p, err := core.ParsePURL(spec)
	if err != nil {
		return core.Dependency{}, fmt.Errorf("invalid package spec %q: %w", spec, err)
	}
	rng := p.Version
	if rng == "" {
		rng = "latest"
	}
	return core.Dependency{Name: p.FullName(), Requirements: rng}, nil
}

// manifestFile is the subset of a package.json-shaped file this mirror
// reads: a flat mapping of dependency name to range string.
type manifestFile struct {
	Dependencies map[string]string `json:"dependencies"`
}

// ParseManifestFile reads root dependency edges out of manifest JSON. The
// file must carry a "dependencies" field; its absence is a BAD_INPUT,
// fatal to the current invocation.
func ParseManifestFile(data []byte) ([]core.Dependency, error) {
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	if m.Dependencies == nil {
		return nil, fmt.Errorf("manifest file has no dependencies field")
	}

	deps := make([]core.Dependency, 0, len(m.Dependencies))
	for name, rng := range m.Dependencies {
		deps = append(deps, core.Dependency{Name: name, Requirements: rng})
	}
	return deps, nil
}

// MaxTopN is the hard cap on how many Top-N entries a single seed
// acquisition will request, regardless of what the caller asks for.
const MaxTopN = 5250

// PageSize is the maximum number of entries requested per page from the
// Top-N popularity service.
const PageSize = 250

// Entry is one Top-N result: already a concrete (name, version) pair, as
// produced by the external popularity source.
type Entry struct {
	Name    string
	Version string
}

// PageFetcher is the opaque Top-N popularity producer's paging contract.
// The producer itself lives outside the core; only this interface is
// specified.
type PageFetcher interface {
	FetchPage(ctx context.Context, size, offset int) ([]Entry, error)
}

// FetchTopN pages through f to collect up to n entries, clamped to
// MaxTopN, in pages of at most PageSize.
func FetchTopN(ctx context.Context, f PageFetcher, n int) ([]core.Dependency, error) {
	if n > MaxTopN {
		n = MaxTopN
	}

	var entries []Entry
	for offset := 0; offset < n; {
		size := PageSize
		if remaining := n - offset; remaining < size {
			size = remaining
		}
		page, err := f.FetchPage(ctx, size, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching top-N page at offset %d: %w", offset, err)
		}
		entries = append(entries, page...)
		offset += size
		if len(page) < size {
			break
		}
	}

	deps := make([]core.Dependency, len(entries))
	for i, e := range entries {
		deps[i] = core.Dependency{Name: e.Name, Requirements: e.Version}
	}
	return deps, nil
}
