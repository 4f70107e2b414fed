//go:build !rnnoise

package rnnoise

import "github.com/audxlabs/audx-go/pkg/denoise"

// Engine is a stub that exists so callers type-check without the rnnoise
// build tag. New always fails, so its methods are unreachable in practice.
type Engine struct{}

// New reports that RNNoise support is not compiled in.
func New() (*Engine, error) {
	return nil, ErrNotBuilt
}

// SampleRate returns the fixed engine rate.
func (e *Engine) SampleRate() int { return denoise.SampleRate }

// FrameSize returns the fixed frame length.
func (e *Engine) FrameSize() int { return denoise.FrameSize }

// NewSession always returns ErrNotBuilt.
func (e *Engine) NewSession() (denoise.Session, error) {
	return nil, ErrNotBuilt
}

var _ denoise.Engine = (*Engine)(nil)
