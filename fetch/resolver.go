package fetch

import (
	"fmt"
	"strings"
)

// ArtifactInfo describes where a resolved package's tarball lives and
// what filename it should be written under.
type ArtifactInfo struct {
	URL      string
	Filename string
}

// ResolveArtifact builds the predictable tarball URL and on-disk filename
// for (name, version) against baseURL, without a network round-trip.
// npm serves a package's tarball at a fixed path derived from its name and
// version: <base>/<name>/-/<shortName>-<version>.tgz, where shortName
// drops any @scope/ prefix.
func ResolveArtifact(baseURL, name, version string) *ArtifactInfo {
	shortName := name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		shortName = name[idx+1:]
	}
	url := fmt.Sprintf("%s/%s/-/%s-%s.tgz", strings.TrimSuffix(baseURL, "/"), name, shortName, version)
	return &ArtifactInfo{
		URL:      url,
		Filename: filenameFromURL(url),
	}
}

func filenameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
