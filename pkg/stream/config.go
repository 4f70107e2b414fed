package stream

import (
	"errors"
	"fmt"

	"github.com/audxlabs/audx-go/pkg/resample"
)

// Input sample rate bounds accepted by New.
const (
	MinInputSampleRate = 8000
	MaxInputSampleRate = 192000
)

// Defaults applied by DefaultConfig and, for the pool fields, by New when
// the corresponding Config field is zero.
const (
	DefaultVADThreshold      = 0.5
	DefaultPoolBuffers       = 8
	DefaultPoolBufferSamples = 8192
)

// Config holds the parameters for a Pipeline. Use DefaultConfig for a
// starting point; a hand-built Config is validated field by field, so a
// zero ResampleQuality selects linear interpolation rather than the
// default quality.
type Config struct {
	// InputSampleRate is the rate of submitted audio in Hz. Must be within
	// [MinInputSampleRate, MaxInputSampleRate]. When it differs from the
	// engine rate the pipeline resamples around every engine call.
	InputSampleRate int

	// ResampleQuality selects the rate converter quality, within
	// [resample.QualityMin, resample.QualityMax]. Ignored when the input
	// rate equals the engine rate.
	ResampleQuality int

	// VADThreshold is the voice activity probability above which a frame
	// counts as speech, within [0, 1]. A frame is speech iff its
	// probability is strictly greater than the threshold.
	VADThreshold float64

	// PoolBuffers is the number of chunk buffers pre-warmed in the input
	// pool. Zero selects DefaultPoolBuffers.
	PoolBuffers int

	// PoolBufferSamples is the capacity of each pooled chunk buffer.
	// Submissions larger than this bypass the pool. Zero selects
	// DefaultPoolBufferSamples.
	PoolBufferSamples int
}

// DefaultConfig returns a Config for the given input rate with all other
// fields at their defaults.
func DefaultConfig(inputSampleRate int) Config {
	return Config{
		InputSampleRate:   inputSampleRate,
		ResampleQuality:   resample.QualityDefault,
		VADThreshold:      DefaultVADThreshold,
		PoolBuffers:       DefaultPoolBuffers,
		PoolBufferSamples: DefaultPoolBufferSamples,
	}
}

// Validate checks every field and reports all violations joined together,
// wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	if c.InputSampleRate < MinInputSampleRate || c.InputSampleRate > MaxInputSampleRate {
		errs = append(errs, fmt.Errorf("input sample rate %d outside [%d, %d]",
			c.InputSampleRate, MinInputSampleRate, MaxInputSampleRate))
	}
	if c.ResampleQuality < resample.QualityMin || c.ResampleQuality > resample.QualityMax {
		errs = append(errs, fmt.Errorf("resample quality %d outside [%d, %d]",
			c.ResampleQuality, resample.QualityMin, resample.QualityMax))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad threshold %g outside [0, 1]", c.VADThreshold))
	}
	if c.PoolBuffers < 0 {
		errs = append(errs, fmt.Errorf("pool buffers %d negative", c.PoolBuffers))
	}
	if c.PoolBufferSamples < 0 {
		errs = append(errs, fmt.Errorf("pool buffer samples %d negative", c.PoolBufferSamples))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
