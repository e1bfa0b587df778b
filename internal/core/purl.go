package core

import (
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL wraps packageurl.PackageURL with npm-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name the npm registry expects, e.g.
// "@babel/core" for a scoped package or "lodash" for an unscoped one.
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// ParsePURL parses a Package URL string into its components. Supports
// both package PURLs (pkg:npm/lodash) and version PURLs
// (pkg:npm/lodash@4.17.21).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// NewPURL renders a PURL for a resolved npm package. Scoped names
// (leading "@") are split into namespace and name per the npm PURL type
// spec; packageurl-go url-escapes the "@" in the namespace.
func NewPURL(name, version string) string {
	namespace := ""
	shortName := name
	if strings.HasPrefix(name, "@") {
		if idx := strings.Index(name, "/"); idx >= 0 {
			namespace = name[:idx]
			shortName = name[idx+1:]
		}
	}

	p := packageurl.NewPackageURL("npm", namespace, shortName, version, nil, "")
	return p.ToString()
}
