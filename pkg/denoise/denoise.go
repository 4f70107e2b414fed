// Package denoise defines the Engine interface for noise suppression
// backends.
//
// A denoising engine wraps a frame-level noise suppressor (e.g., RNNoise or
// an energy gate) and surfaces it as per-stream sessions. The engine family
// operates at a fixed rate and frame size: 48 kHz mono 16-bit PCM in 480
// sample (10 ms) frames. Streams at other rates are resampled by the caller;
// see the stream package.
//
// Denoising is synchronous by design: Process returns immediately with the
// suppressed frame and its voice activity probability, making it suitable
// for low-latency pipeline stages.
//
// Engines must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions. A single Session
// must not be shared across goroutines unless the implementation explicitly
// documents thread safety.
package denoise

import "errors"

// Fixed audio parameters of the engine family. Every Session consumes and
// produces frames of exactly FrameSize mono samples at SampleRate Hz.
const (
	// SampleRate is the sample rate engines operate at, in Hz.
	SampleRate = 48000

	// FrameSize is the number of samples per frame (10 ms at SampleRate).
	FrameSize = 480

	// Channels is the supported channel count.
	Channels = 1

	// BitDepth is the supported PCM bit depth.
	BitDepth = 16
)

// ErrFrameSize is returned by Session.Process when either buffer is not
// exactly FrameSize samples long.
var ErrFrameSize = errors.New("denoise: frame length must equal FrameSize")

// Session is an active denoising stream. Each session maintains its own
// suppression state (noise estimates, model memory) so concurrent streams
// do not interfere.
type Session interface {
	// Process suppresses noise on a single frame. Both in and out must be
	// exactly FrameSize samples; in-place processing (in == out) is allowed.
	// It returns the frame's voice activity probability in [0, 1].
	Process(in, out []int16) (float64, error)

	// Reset clears accumulated suppression state without closing the
	// session. Use it when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. After
	// Close, Process must return an error. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for denoising sessions. It is the top-level
// interface implemented by each backend.
type Engine interface {
	// NewSession creates a session that is immediately ready to accept
	// frames. Returns an error if the backend cannot allocate resources.
	NewSession() (Session, error)

	// SampleRate returns the sample rate the engine's sessions operate at.
	SampleRate() int

	// FrameSize returns the frame length the engine's sessions require.
	FrameSize() int
}
