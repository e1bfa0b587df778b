// Package core provides the shared HTTP client, error types, and PURL
// helpers used by the npm registry client and the rest of the mirror
// pipeline.
package core

// Dependency represents a single edge of a package's dependency graph,
// as declared in one of a manifest's dependency maps.
type Dependency struct {
	Name         string
	Requirements string
	Scope        Scope
	Optional     bool
}

// Scope indicates which dependency map a Dependency was read from.
// The merge order (Runtime, then Optional, then Peer, then Development,
// later wins on name collision) is significant - see resolve.Edges.
type Scope string

const (
	Runtime     Scope = "runtime"
	Development Scope = "development"
	Peer        Scope = "peer"
	Optional    Scope = "optional"
)
