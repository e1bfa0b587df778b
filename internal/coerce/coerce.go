// Package coerce normalizes a dependency range string into a concrete
// query version for the registry client, the way npm's own
// semver.coerce() does.
package coerce

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Latest is the literal dist-tag substituted whenever a range cannot be
// turned into a concrete version.
const Latest = "latest"

// numericVersion matches the first contiguous N[.N[.N]] run in a string,
// the same best-effort extraction node-semver's coerce() performs.
var numericVersion = regexp.MustCompile(`\d+(?:\.\d+)?(?:\.\d+)?`)

// Query strips a single leading "^" or "~" from range, and returns it
// unchanged if the result already parses as a concrete semver. Otherwise
// it attempts the coercion algorithm (first N[.N[.N]] substring,
// zero-filled), falling back to the literal "latest" when nothing in the
// string looks like a version. Query is pure and total: it never errors.
func Query(rng string) string {
	stripped := strings.TrimSpace(rng)
	stripped = strings.TrimPrefix(stripped, "^")
	stripped = strings.TrimPrefix(stripped, "~")

	if _, err := semver.StrictNewVersion(stripped); err == nil {
		return stripped
	}

	if coerced, ok := coerceToVersion(stripped); ok {
		return coerced
	}

	return Latest
}

// coerceToVersion implements the zero-fill coercion: find the first
// N[.N[.N]] run and pad missing components with zero.
func coerceToVersion(s string) (string, bool) {
	match := numericVersion.FindString(s)
	if match == "" {
		return "", false
	}

	parts := strings.Split(match, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	candidate := strings.Join(parts[:3], ".")

	if _, err := semver.StrictNewVersion(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

// IsConcrete reports whether version parses as a strict semantic
// version (MAJOR.MINOR.PATCH[-prerelease]), the definition of "concrete"
// used throughout the resolver.
func IsConcrete(version string) bool {
	_, err := semver.StrictNewVersion(version)
	return err == nil
}
