package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Submit, FlushSync, and Close-adjacent
	// operations once Close has begun.
	ErrClosed = errors.New("stream: pipeline is closed")

	// ErrInvalidConfig wraps all configuration validation failures reported
	// by New.
	ErrInvalidConfig = errors.New("stream: invalid config")
)

// Stage identifies the pipeline step a frame failure occurred in.
type Stage string

const (
	// StageUpsample covers conversion from the input rate to the engine rate.
	StageUpsample Stage = "upsample"

	// StageDenoise covers the denoising engine call.
	StageDenoise Stage = "denoise"

	// StageDownsample covers conversion back to the input rate.
	StageDownsample Stage = "downsample"
)

// FrameError reports a single frame that failed to process. The pipeline
// drops the frame, delivers the error to the error callback, and continues
// with the next frame; a FrameError never stops the stream.
type FrameError struct {
	// Stage is the step that failed.
	Stage Stage

	// Frame is the zero-based ordinal of the input frame that failed,
	// counted across the life of the pipeline.
	Frame uint64

	// Err is the underlying failure.
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("stream: frame %d failed in %s stage: %v", e.Frame, e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
