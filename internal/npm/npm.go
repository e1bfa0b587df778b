// Package npm is a registry client for npmjs.com-shaped registries: it
// fetches a package's manifest (one version) and packument (all versions
// plus dist-tags), with the fallback-to-latest behavior the mirror's
// resolver depends on.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/registry-mirror/internal/core"
)

// DefaultURL is the public registry this mirror reads from by default.
const DefaultURL = "https://registry.npmjs.org"

// registryErrorBody is the JSON error envelope the client looks for on a
// 404 response, per the npm error vocabulary: code is "E404" or
// "ETARGET", and distTags is only populated for ETARGET.
type registryErrorBody struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	DistTags map[string]string `json:"distTags"`
}

// Manifest is the registry's per-version metadata for a package.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Dist                 DistInfo          `json:"dist"`
}

// DistInfo carries the tarball location and integrity metadata for one
// version.
type DistInfo struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// Packument is the registry's per-package document aggregating every
// published version and its dist-tags.
type Packument struct {
	Name     string                 `json:"name"`
	Versions map[string]Manifest    `json:"versions"`
	DistTags map[string]string      `json:"dist-tags"`
	Time     map[string]string      `json:"time,omitempty"`
}

// Client is a registry client bound to a single base URL.
type Client struct {
	baseURL string
	http    *core.Client
}

// New creates a registry client. If baseURL is empty, DefaultURL is used.
func New(baseURL string, http *core.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if http == nil {
		http = core.DefaultClient()
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: http}
}

func (c *Client) packageURL(name string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(name))
}

func (c *Client) versionURL(name, version string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(name), url.PathEscape(version))
}

// Manifest fetches the manifest for the exact version requested.
//
// If the registry reports the version missing (ETARGET) it transparently
// retries with the distTags.latest version carried on the error and
// returns that manifest instead - the caller never sees the miss. If the
// package itself doesn't exist (E404) and version was not already the
// literal "latest", it retries once with "latest" before surfacing the
// error.
func (c *Client) Manifest(ctx context.Context, name, version string) (Manifest, error) {
	body, err := c.http.GetBody(ctx, c.versionURL(name, version))
	if err == nil {
		var m Manifest
		if jsonErr := json.Unmarshal(body, &m); jsonErr != nil {
			return Manifest{}, fmt.Errorf("decoding manifest for %s@%s: %w", name, version, jsonErr)
		}
		return m, nil
	}

	regErr := classifyError(name, version, err)

	var targetMissing *core.TargetMissingError
	if asTargetMissing(regErr, &targetMissing) {
		latest, ok := targetMissing.DistTags["latest"]
		if !ok {
			return Manifest{}, regErr
		}
		return c.Manifest(ctx, name, latest)
	}

	var notFound *core.NotFoundError
	if asNotFound(regErr, &notFound) && version != "latest" {
		return c.Manifest(ctx, name, "latest")
	}

	return Manifest{}, regErr
}

// Packument fetches the full packument for name. Errors surface
// unchanged; there is no fallback for packument lookups.
func (c *Client) Packument(ctx context.Context, name string) (Packument, error) {
	body, err := c.http.GetBody(ctx, c.packageURL(name))
	if err != nil {
		return Packument{}, classifyError(name, "", err)
	}

	var p Packument
	if err := json.Unmarshal(body, &p); err != nil {
		return Packument{}, fmt.Errorf("decoding packument for %s: %w", name, err)
	}
	return p, nil
}

// IsLatest reports whether version is name's dist-tags.latest, fetching
// the packument to find out. Failure to fetch the packument degrades to
// false rather than propagating an error, matching the resolver's
// leniency policy.
func (c *Client) IsLatest(ctx context.Context, name, version string) bool {
	p, err := c.Packument(ctx, name)
	if err != nil {
		return false
	}
	return p.DistTags["latest"] == version
}

// classifyError turns an *core.HTTPError into the registry-specific
// error kinds the resolver matches on. Non-HTTP errors (network
// failures, context cancellation) pass through unchanged.
func classifyError(name, version string, err error) error {
	httpErr, ok := err.(*core.HTTPError)
	if !ok || !httpErr.IsNotFound() {
		return err
	}

	var body registryErrorBody
	_ = json.Unmarshal([]byte(httpErr.Body), &body)

	if body.Code == "ETARGET" && len(body.DistTags) > 0 {
		return &core.TargetMissingError{Name: name, Version: version, DistTags: body.DistTags}
	}

	return &core.NotFoundError{Name: name, Version: version}
}

func asTargetMissing(err error, target **core.TargetMissingError) bool {
	if e, ok := err.(*core.TargetMissingError); ok {
		*target = e
		return true
	}
	return false
}

func asNotFound(err error, target **core.NotFoundError) bool {
	if e, ok := err.(*core.NotFoundError); ok {
		*target = e
		return true
	}
	return false
}
