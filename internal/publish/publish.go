// Package publish defines the boundary between the mirror's output and a
// private registry's upload surface. Login and per-tarball upload are out
// of scope; only the interface the orchestrator could eventually hand a
// completed destination directory to is specified here.
package publish

import "context"

// Target accepts a directory of downloaded tarballs for republishing
// against a private registry. No implementation ships with this module;
// it exists so a caller's own publish subsystem has a stable boundary to
// satisfy.
type Target interface {
	Publish(ctx context.Context, dir string) error
}
