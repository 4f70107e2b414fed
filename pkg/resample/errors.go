package resample

import "errors"

var (
	// ErrInvalidChannels is returned by New when the channel count is < 1.
	ErrInvalidChannels = errors.New("resample: channel count must be at least 1")

	// ErrInvalidRate is returned by New when either sample rate is <= 0.
	ErrInvalidRate = errors.New("resample: sample rates must be positive")

	// ErrInvalidQuality is returned by New when quality is outside
	// [QualityMin, QualityMax].
	ErrInvalidQuality = errors.New("resample: quality out of range")

	// ErrAlignment is returned by Process when a buffer length is not a
	// multiple of the channel count.
	ErrAlignment = errors.New("resample: buffer length not aligned to channel count")

	// ErrClosed is returned by Process after Close has been called.
	ErrClosed = errors.New("resample: resampler is closed")
)
