package stream

// Aggregator reblocks arbitrary-sized sample slices into fixed-size frames.
// Samples are appended in any quantity and come back out as exact frames in
// submission order; nothing is dropped and nothing is reordered.
//
// Returned frames are views into the aggregator's buffer and stay valid
// only until the next Append or PadRemainder call. Consume or copy a frame
// before feeding more samples. An Aggregator is not safe for concurrent use.
type Aggregator struct {
	frameSize int
	buf       []int16
	head      int // start of unconsumed samples in buf
}

// NewAggregator creates an Aggregator producing frames of frameSize
// samples. frameSize must be positive.
func NewAggregator(frameSize int) *Aggregator {
	return &Aggregator{
		frameSize: frameSize,
		buf:       make([]int16, 0, frameSize*4),
	}
}

// FrameSize returns the frame length in samples.
func (a *Aggregator) FrameSize() int { return a.frameSize }

// Buffered returns the number of samples accumulated but not yet returned
// as frames.
func (a *Aggregator) Buffered() int { return len(a.buf) - a.head }

// Append adds samples to the accumulator. Previously returned frame views
// are invalidated.
func (a *Aggregator) Append(samples []int16) {
	a.compact()
	a.buf = append(a.buf, samples...)
}

// TakeFrame returns the next full frame, or false when fewer than a full
// frame's worth of samples is buffered.
func (a *Aggregator) TakeFrame() ([]int16, bool) {
	if a.Buffered() < a.frameSize {
		return nil, false
	}
	frame := a.buf[a.head : a.head+a.frameSize]
	a.head += a.frameSize
	return frame, true
}

// PadRemainder drains the accumulator at end of stream. Full frames come
// back unpadded first; the final partial frame is zero-padded to exactly
// one frame. The padding is always shorter than a frame. Returns false once
// nothing is buffered, so calling it again after a drain is a no-op.
func (a *Aggregator) PadRemainder() ([]int16, bool) {
	if frame, ok := a.TakeFrame(); ok {
		return frame, true
	}
	n := a.Buffered()
	if n == 0 {
		return nil, false
	}
	a.compact()
	for range a.frameSize - n {
		a.buf = append(a.buf, 0)
	}
	frame := a.buf[:a.frameSize]
	a.head = a.frameSize
	return frame, true
}

// compact moves unconsumed samples to the front of the buffer so appended
// data stays contiguous without growing the allocation.
func (a *Aggregator) compact() {
	if a.head == 0 {
		return
	}
	n := copy(a.buf, a.buf[a.head:])
	a.buf = a.buf[:n]
	a.head = 0
}
