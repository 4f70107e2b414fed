package stream

import (
	"errors"
	"time"

	"github.com/audxlabs/audx-go/pkg/denoise"
)

// processor owns the per-stream processing state: the aggregator, the rate
// converter, the engine session, and the scratch buffers frames move
// through. All methods run on the pipeline worker goroutine; only the stats
// collector inside is shared with other goroutines.
type processor struct {
	agg     *Aggregator
	conv    *RateConverter // nil when the input rate equals the engine rate
	session denoise.Session
	stats   *StatsCollector

	threshold float64
	frameSeq  uint64 // ordinal of the next input frame

	// lastVAD/lastSpeech describe the most recent successfully processed
	// frame; they accompany every delivery of that frame's audio.
	lastVAD    float64
	lastSpeech bool

	engineIn  []int16 // upsampled frame scratch
	engineOut []int16 // denoised frame scratch
	downBuf   []int16 // downsampled output scratch
	out       []int16 // per-call output accumulator, reused across calls

	emitErr func(*FrameError)
}

func newProcessor(agg *Aggregator, conv *RateConverter, session denoise.Session,
	stats *StatsCollector, threshold float64, engineFrame int, emitErr func(*FrameError)) *processor {

	p := &processor{
		agg:       agg,
		conv:      conv,
		session:   session,
		stats:     stats,
		threshold: threshold,
		engineOut: make([]int16, engineFrame),
		out:       make([]int16, 0, engineFrame*2),
		emitErr:   emitErr,
	}
	if conv != nil {
		p.engineIn = make([]int16, engineFrame)
		p.downBuf = make([]int16, conv.DownsampleBound(engineFrame))
	}
	return p
}

// process appends a chunk and runs every full frame it completes. The
// returned slice is the concatenated output of those frames and stays valid
// until the next process or flush call.
func (p *processor) process(chunk []int16) []int16 {
	p.out = p.out[:0]
	p.agg.Append(chunk)
	for {
		frame, ok := p.agg.TakeFrame()
		if !ok {
			return p.out
		}
		p.processFrame(frame)
	}
}

// flush drains the aggregator, zero-padding the final partial frame, and
// runs everything through the pipeline. Flushing an empty aggregator
// produces no output, so a second flush in a row is a no-op.
func (p *processor) flush() []int16 {
	p.out = p.out[:0]
	for {
		frame, ok := p.agg.PadRemainder()
		if !ok {
			return p.out
		}
		p.processFrame(frame)
	}
}

// processFrame moves one input-rate frame through upsample, denoise, and
// downsample. A failure at any stage drops the frame, reports it through
// emitErr, and leaves the pipeline ready for the next frame.
func (p *processor) processFrame(frame []int16) {
	seq := p.frameSeq
	p.frameSeq++
	start := time.Now()

	engineFrame := frame
	if p.conv != nil {
		if err := p.conv.Upsample(frame, p.engineIn); err != nil {
			p.emitErr(&FrameError{Stage: StageUpsample, Frame: seq, Err: err})
			return
		}
		engineFrame = p.engineIn
	}

	vad, err := p.session.Process(engineFrame, p.engineOut)
	if err != nil {
		p.emitErr(&FrameError{Stage: StageDenoise, Frame: seq, Err: err})
		return
	}
	if vad < 0 {
		vad = 0
	} else if vad > 1 {
		vad = 1
	}

	outFrame := p.engineOut
	if p.conv != nil {
		n, err := p.conv.Downsample(p.engineOut, p.downBuf)
		if err != nil {
			p.emitErr(&FrameError{Stage: StageDownsample, Frame: seq, Err: err})
			return
		}
		outFrame = p.downBuf[:n]
	}

	speech := vad > p.threshold
	p.out = append(p.out, outFrame...)
	p.lastVAD, p.lastSpeech = vad, speech
	p.stats.Record(vad, speech, time.Since(start))
}

// close releases the engine session and the rate converter.
func (p *processor) close() error {
	errs := []error{p.session.Close()}
	if p.conv != nil {
		errs = append(errs, p.conv.Close())
	}
	return errors.Join(errs...)
}
