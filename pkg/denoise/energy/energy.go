// Package energy implements a pure-Go denoising engine based on an adaptive
// noise gate.
//
// Each session tracks a running noise floor estimate (frame RMS, adapting
// quickly downward and slowly upward) and compares every frame against it.
// Frames close to the floor are attenuated; frames well above it pass
// through. The gate opens and closes with hysteresis so borderline frames do
// not flicker, and the applied gain is smoothed across frames to avoid
// clicks. The frame-to-floor ratio also yields the voice activity
// probability.
//
// This is not a spectral suppressor: it cannot remove noise that overlaps
// speech in time. It exists as a dependency-free default; for real
// suppression build with the rnnoise engine.
package energy

import (
	"errors"
	"math"

	"github.com/audxlabs/audx-go/pkg/denoise"
	"github.com/audxlabs/audx-go/pkg/pcm"
)

// ErrClosed is returned by Process after the session has been closed.
var ErrClosed = errors.New("energy: session is closed")

// Tuning defaults. Ratios relate frame RMS to the tracked noise floor.
const (
	DefaultAttenuation = 0.1 // gain applied while the gate is closed
	DefaultOpenRatio   = 2.5 // frame/floor ratio that opens the gate
	DefaultCloseRatio  = 1.4 // frame/floor ratio that closes it again

	floorRise    = 0.008 // upward floor adaptation per closed-gate frame
	floorFall    = 0.35  // downward floor adaptation per frame
	gainStep     = 0.3   // per-frame gain movement toward its target
	floorEpsilon = 1e-4  // keeps the ratio finite on digital silence
)

// Option configures an Engine.
type Option func(*Engine)

// WithAttenuation sets the gain applied to frames while the gate is closed.
// Values are clamped to [0, 1]. 0 mutes noise frames entirely.
func WithAttenuation(gain float64) Option {
	return func(e *Engine) { e.attenuation = math.Min(1, math.Max(0, gain)) }
}

// WithOpenRatio sets the frame-to-floor RMS ratio above which the gate
// opens. Must exceed the close ratio for the hysteresis band to exist.
func WithOpenRatio(ratio float64) Option {
	return func(e *Engine) { e.openRatio = ratio }
}

// WithCloseRatio sets the frame-to-floor RMS ratio below which an open gate
// closes.
func WithCloseRatio(ratio float64) Option {
	return func(e *Engine) { e.closeRatio = ratio }
}

// Engine creates adaptive noise gate sessions. The zero value is not usable;
// call New.
type Engine struct {
	attenuation float64
	openRatio   float64
	closeRatio  float64
}

// New returns an Engine with the given options applied over the defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		attenuation: DefaultAttenuation,
		openRatio:   DefaultOpenRatio,
		closeRatio:  DefaultCloseRatio,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SampleRate returns the fixed engine rate.
func (e *Engine) SampleRate() int { return denoise.SampleRate }

// FrameSize returns the fixed frame length.
func (e *Engine) FrameSize() int { return denoise.FrameSize }

// NewSession creates an independent gate session. It never fails.
func (e *Engine) NewSession() (denoise.Session, error) {
	return &session{
		attenuation: e.attenuation,
		openRatio:   e.openRatio,
		closeRatio:  e.closeRatio,
		gain:        e.attenuation,
	}, nil
}

var _ denoise.Engine = (*Engine)(nil)

type session struct {
	attenuation float64
	openRatio   float64
	closeRatio  float64

	floor  float64 // noise floor estimate, normalized RMS
	warmed bool
	open   bool
	gain   float64
	closed bool
}

var _ denoise.Session = (*session)(nil)

// Process gates a single frame and returns its voice activity probability.
func (s *session) Process(in, out []int16) (float64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(in) != denoise.FrameSize || len(out) != denoise.FrameSize {
		return 0, denoise.ErrFrameSize
	}

	level := rms(in)
	switch {
	case !s.warmed:
		s.floor = level
		s.warmed = true
	case level < s.floor:
		s.floor += floorFall * (level - s.floor)
	case !s.open:
		// Loud frames only drag the floor up while the gate is closed, so
		// sustained speech does not erode its own headroom.
		s.floor += floorRise * (level - s.floor)
	}

	ratio := level / (s.floor + floorEpsilon)
	prob := ratio / (ratio + s.openRatio)

	if s.open {
		if ratio <= s.closeRatio {
			s.open = false
		}
	} else if ratio >= s.openRatio {
		s.open = true
	}

	target := s.attenuation
	if s.open {
		target = 1
	}
	s.gain += gainStep * (target - s.gain)

	for i, v := range in {
		out[i] = pcm.Clamp16(int32(math.Round(float64(v) * s.gain)))
	}
	return prob, nil
}

// Reset clears the floor estimate, gate state, and gain smoothing.
func (s *session) Reset() {
	s.floor = 0
	s.warmed = false
	s.open = false
	s.gain = s.attenuation
}

// Close marks the session closed. Idempotent.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// rms returns the frame's root mean square level normalized to [0, 1].
func rms(frame []int16) float64 {
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(frame))) / 32768
}
