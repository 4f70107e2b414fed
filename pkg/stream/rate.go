package stream

import (
	"errors"
	"fmt"

	"github.com/audxlabs/audx-go/pkg/resample"
)

// RateConverter bridges the input sample rate and the engine rate with a
// stateful resampler in each direction. Interpolation history carries across
// calls, so consecutive frames of a stream join without seams.
//
// The converter holds back small sample carries in both directions: the
// resampler's interpolation window withholds a little lookahead, and output
// rounding can leave a sample or two for the next call. Upsample hides this
// by zero-padding to a full engine frame; Downsample simply reports what was
// produced, which evens out to the exact rate ratio over the stream.
//
// A RateConverter is not safe for concurrent use.
type RateConverter struct {
	up   *resample.Resampler
	down *resample.Resampler

	upCarry   []int16
	downCarry []int16
}

// NewRateConverter creates a converter between inputRate and engineRate at
// the given quality. frameIn is the input-rate frame size, used only to
// pre-size internal carry buffers.
func NewRateConverter(inputRate, engineRate, frameIn, quality int) (*RateConverter, error) {
	up, err := resample.New(1, inputRate, engineRate, quality)
	if err != nil {
		return nil, fmt.Errorf("stream: create upsampler: %w", err)
	}
	down, err := resample.New(1, engineRate, inputRate, quality)
	if err != nil {
		up.Close()
		return nil, fmt.Errorf("stream: create downsampler: %w", err)
	}
	return &RateConverter{
		up:        up,
		down:      down,
		upCarry:   make([]int16, 0, frameIn+16),
		downCarry: make([]int16, 0, down.InRate()/50+16),
	}, nil
}

// Upsample converts one input-rate frame into exactly one engine-rate
// frame, filling all of out. Any shortfall from resampler ramp-up is
// zero-padded at the tail; any surplus stays carried for the next call.
func (c *RateConverter) Upsample(frame, out []int16) error {
	c.upCarry = append(c.upCarry, frame...)
	consumed, produced, err := c.up.Process(c.upCarry, out)
	if err != nil {
		return fmt.Errorf("stream: upsample: %w", err)
	}
	c.upCarry = append(c.upCarry[:0], c.upCarry[consumed:]...)
	for i := produced; i < len(out); i++ {
		out[i] = 0
	}
	return nil
}

// Downsample converts one engine-rate frame back to the input rate, writing
// into out and returning the number of samples produced. out should be
// sized with DownsampleBound.
func (c *RateConverter) Downsample(frame, out []int16) (int, error) {
	c.downCarry = append(c.downCarry, frame...)
	consumed, produced, err := c.down.Process(c.downCarry, out)
	if err != nil {
		return 0, fmt.Errorf("stream: downsample: %w", err)
	}
	c.downCarry = append(c.downCarry[:0], c.downCarry[consumed:]...)
	return produced, nil
}

// DownsampleBound returns an output size guaranteed to hold everything a
// single Downsample call can produce from frames of the given size.
func (c *RateConverter) DownsampleBound(frameSize int) int {
	return c.down.OutputBound(frameSize) + 8
}

// Reset clears resampler history and carries in both directions.
func (c *RateConverter) Reset() {
	c.up.Reset()
	c.down.Reset()
	c.upCarry = c.upCarry[:0]
	c.downCarry = c.downCarry[:0]
}

// Close releases both resamplers.
func (c *RateConverter) Close() error {
	return errors.Join(c.up.Close(), c.down.Close())
}
