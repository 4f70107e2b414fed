//go:build rnnoise

// This file contains the RNNoise-backed engine using CGO. librnnoise and its
// header must be discoverable through pkg-config at build time. RNNoise's
// native format matches this module's engine contract exactly: 48 kHz mono
// frames of 480 samples.

package rnnoise

/*
#cgo pkg-config: rnnoise
#include <rnnoise.h>
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/audxlabs/audx-go/pkg/denoise"
	"github.com/audxlabs/audx-go/pkg/pcm"
)

// Engine creates RNNoise sessions, each with its own C-side DenoiseState.
type Engine struct{}

// New returns an RNNoise engine.
func New() (*Engine, error) {
	return &Engine{}, nil
}

// SampleRate returns the fixed engine rate.
func (e *Engine) SampleRate() int { return denoise.SampleRate }

// FrameSize returns the fixed frame length.
func (e *Engine) FrameSize() int { return denoise.FrameSize }

// NewSession allocates a fresh RNNoise state with the default model.
func (e *Engine) NewSession() (denoise.Session, error) {
	st := C.rnnoise_create(nil)
	if st == nil {
		return nil, errors.New("rnnoise: rnnoise_create failed")
	}
	return &session{
		st:  st,
		buf: make([]float32, denoise.FrameSize),
	}, nil
}

var _ denoise.Engine = (*Engine)(nil)

// session wraps one DenoiseState. RNNoise expects float32 samples scaled to
// the int16 range, processed in place.
type session struct {
	st  *C.DenoiseState
	buf []float32
}

var _ denoise.Session = (*session)(nil)

func (s *session) Process(in, out []int16) (float64, error) {
	if s.st == nil {
		return 0, ErrClosed
	}
	if len(in) != denoise.FrameSize || len(out) != denoise.FrameSize {
		return 0, denoise.ErrFrameSize
	}

	pcm.Int16ToFloat32(in, s.buf)
	p := (*C.float)(unsafe.Pointer(&s.buf[0]))
	vad := float64(C.rnnoise_process_frame(s.st, p, p))
	pcm.Float32ToInt16(s.buf, out)

	if vad < 0 {
		vad = 0
	} else if vad > 1 {
		vad = 1
	}
	return vad, nil
}

// Reset discards the model's recurrent state by recreating it.
func (s *session) Reset() {
	if s.st == nil {
		return
	}
	C.rnnoise_destroy(s.st)
	s.st = C.rnnoise_create(nil)
}

// Close frees the C-side state. Idempotent.
func (s *session) Close() error {
	if s.st != nil {
		C.rnnoise_destroy(s.st)
		s.st = nil
	}
	return nil
}
