// Package rnnoise provides a denoising engine backed by the RNNoise C
// library. It is only functional when built with the "rnnoise" build tag;
// without it, New returns ErrNotBuilt so callers can fall back to another
// engine.
package rnnoise

import "errors"

var (
	// ErrNotBuilt is returned by New when the binary was built without the
	// rnnoise build tag.
	ErrNotBuilt = errors.New("rnnoise: built without rnnoise support (build with -tags rnnoise)")

	// ErrClosed is returned by Process after the session has been closed.
	ErrClosed = errors.New("rnnoise: session is closed")
)
