// Package imagebuild describes the container image for the service as an
// ordered build plan.
//
// A Plan is rendered either as a Dockerfile or executed step by step through
// a Dagger pipeline. The dependency manifest is copied and installed before
// the source tree so that source edits do not invalidate the dependency
// layer, and the install step leaves no build cache behind.
//
// The Dagger builder evaluates the pipeline up to the install step before it
// uploads the source tree, so an unresolvable dependency fails the build
// without copying any source.
package imagebuild
