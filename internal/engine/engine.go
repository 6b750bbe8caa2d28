// Package engine abstracts the external documentation build tool.
//
// The build manager never renders documents itself; it hands an Engine the
// source, output and configuration directories of a unit together with the
// requested output kind and receives an exit status back. Zero means success.
package engine

import (
	"context"
	"io"
)

// ExitTimeout is the status reported when a build exceeds its deadline.
const ExitTimeout = 124

// Request describes one build invocation.
type Request struct {
	SourceDir string
	OutputDir string
	Kind      string
	ConfigDir string
	// Force requests a clean, full rebuild instead of an incremental one.
	Force bool
	// Log receives the engine's combined output. May be nil.
	Log io.Writer
}

// Engine runs a documentation build and returns its exit status. A non-nil
// error means the engine could not be started at all.
type Engine interface {
	Build(ctx context.Context, req Request) (int, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, req Request) (int, error)

func (f Func) Build(ctx context.Context, req Request) (int, error) { return f(ctx, req) }
