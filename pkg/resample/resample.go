// Package resample provides a stateful sample-rate converter for interleaved
// 16-bit PCM audio.
//
// A Resampler carries interpolation history across Process calls, so a
// stream fed to it in arbitrary slices produces the same samples as the
// whole stream fed at once. Quality levels QualityMin through 2 use linear
// interpolation between neighboring samples; higher levels use a four-point
// Catmull-Rom cubic, which needs one sample of back-history and two samples
// of lookahead per output sample.
//
// Process follows a consume/produce contract: output is bounded by the
// destination buffer, and input samples that could not be absorbed yet
// (because the destination filled up, or because the interpolation window
// still needs future samples) are reported as unconsumed. Callers re-offer
// unconsumed samples at the front of the next call. Over a whole stream the
// cumulative output length converges on len(input) * outRate / inRate even
// though individual calls may produce one sample more or fewer.
package resample

import "github.com/audxlabs/audx-go/pkg/pcm"

// Quality bounds for New. Higher values select wider interpolation windows.
const (
	QualityMin     = 0
	QualityMax     = 10
	QualityDefault = 4
	QualityVoIP    = 3
)

// historyFrames is the number of trailing input frames retained between
// Process calls. Cubic interpolation reads one frame behind the current
// position; keeping three covers every window shape.
const historyFrames = 3

// Resampler converts interleaved int16 PCM between two fixed sample rates.
// It is not safe for concurrent use.
type Resampler struct {
	channels int
	inRate   int
	outRate  int
	quality  int
	linear   bool

	// step is the source-frame distance between consecutive output frames.
	step float64
	// pos is the fractional source position of the next output frame,
	// in frames, relative to the start of the current work window.
	pos float64

	hist       []int16 // retained tail of consumed input, interleaved
	histFrames int
	work       []int16 // scratch window: hist + caller input
	closed     bool
}

// New creates a Resampler converting from inRate to outRate.
// quality must be within [QualityMin, QualityMax]; QualityDefault is a
// reasonable general-purpose setting and QualityVoIP trades a little
// fidelity for cheaper frames.
func New(channels, inRate, outRate, quality int) (*Resampler, error) {
	if channels < 1 {
		return nil, ErrInvalidChannels
	}
	if inRate <= 0 || outRate <= 0 {
		return nil, ErrInvalidRate
	}
	if quality < QualityMin || quality > QualityMax {
		return nil, ErrInvalidQuality
	}
	return &Resampler{
		channels: channels,
		inRate:   inRate,
		outRate:  outRate,
		quality:  quality,
		linear:   quality <= 2,
		step:     float64(inRate) / float64(outRate),
		hist:     make([]int16, 0, historyFrames*channels),
	}, nil
}

// InRate returns the input sample rate in Hz.
func (r *Resampler) InRate() int { return r.inRate }

// OutRate returns the output sample rate in Hz.
func (r *Resampler) OutRate() int { return r.outRate }

// Channels returns the interleaved channel count.
func (r *Resampler) Channels() int { return r.channels }

// Quality returns the quality level the resampler was created with.
func (r *Resampler) Quality() int { return r.quality }

// OutputBound returns a destination size in samples that is guaranteed to
// hold everything Process can produce from inSamples input samples.
func (r *Resampler) OutputBound(inSamples int) int {
	frames := inSamples / r.channels
	outFrames := int(float64(frames)/r.step) + 2
	return outFrames * r.channels
}

// Process converts samples from in into out. Both slices are interleaved
// and their lengths must be multiples of the channel count. It returns the
// number of input samples consumed and output samples produced. Unconsumed
// input (len(in) - consumed samples from the end) must be offered again at
// the front of the next call; see the package comment.
func (r *Resampler) Process(in, out []int16) (consumed, produced int, err error) {
	if r.closed {
		return 0, 0, ErrClosed
	}
	if len(in)%r.channels != 0 || len(out)%r.channels != 0 {
		return 0, 0, ErrAlignment
	}

	// Build the work window: retained history followed by the new input.
	histLen := r.histFrames * r.channels
	need := histLen + len(in)
	if cap(r.work) < need {
		r.work = make([]int16, need)
	}
	r.work = r.work[:need]
	copy(r.work, r.hist[:histLen])
	copy(r.work[histLen:], in)

	totalFrames := need / r.channels
	outFrames := len(out) / r.channels
	lookahead := 2
	if r.linear {
		lookahead = 1
	}

	emitted := 0
	for emitted < outFrames {
		base := int(r.pos)
		if base+lookahead > totalFrames-1 {
			break
		}
		x := r.pos - float64(base)
		for c := range r.channels {
			var v float64
			if r.linear {
				s0 := float64(r.work[base*r.channels+c])
				s1 := float64(r.work[(base+1)*r.channels+c])
				v = s0*(1-x) + s1*x
			} else {
				i0 := base - 1
				if i0 < 0 {
					i0 = 0 // stream start: duplicate the edge frame
				}
				v = cubic(
					float64(r.work[i0*r.channels+c]),
					float64(r.work[base*r.channels+c]),
					float64(r.work[(base+1)*r.channels+c]),
					float64(r.work[(base+2)*r.channels+c]),
					x,
				)
			}
			out[emitted*r.channels+c] = roundClamp16(v)
		}
		emitted++
		r.pos += r.step
	}

	// Rebase: frames before the current position are consumed. Keep the
	// last few as history; everything at or past the position stays with
	// the caller as unconsumed input. When downsampling, the position can
	// overshoot the window, so clamp the boundary to the data we hold and
	// carry the overshoot in pos.
	base := int(r.pos)
	if base > totalFrames {
		base = totalFrames
	}
	keep := base
	if keep > historyFrames {
		keep = historyFrames
	}
	r.hist = r.hist[:keep*r.channels]
	copy(r.hist, r.work[(base-keep)*r.channels:base*r.channels])

	consumedFrames := base - r.histFrames
	r.histFrames = keep
	r.pos -= float64(base - keep)

	return consumedFrames * r.channels, emitted * r.channels, nil
}

// Reset discards all interpolation history and position state, as if the
// resampler were freshly created.
func (r *Resampler) Reset() {
	r.hist = r.hist[:0]
	r.histFrames = 0
	r.pos = 0
}

// Close releases the resampler. Subsequent Process calls return ErrClosed.
// Close is idempotent.
func (r *Resampler) Close() error {
	r.closed = true
	return nil
}

// cubic evaluates a Catmull-Rom spline through four consecutive samples at
// fractional position x between y1 and y2 (0 <= x <= 1).
func cubic(y0, y1, y2, y3, x float64) float64 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}

func roundClamp16(v float64) int16 {
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	return pcm.Clamp16(int32(v))
}
