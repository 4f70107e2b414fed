package stream

// BufferPool recycles fixed-capacity sample buffers between the goroutines
// that submit audio and the worker that finishes with it. Acquire hands out
// a pooled buffer when the request fits the standard capacity and falls
// back to a fresh allocation otherwise; Release only keeps buffers of
// exactly the standard capacity, so stray slices never pollute the pool.
//
// The free list is a buffered channel, which makes Acquire and Release safe
// from any goroutine without further locking. Both are non-blocking: an
// empty pool allocates, a full pool drops.
type BufferPool struct {
	size int
	free chan []int16
}

// NewBufferPool creates a pool of count buffers, each with capacity size
// samples, all pre-warmed.
func NewBufferPool(count, size int) *BufferPool {
	p := &BufferPool{
		size: size,
		free: make(chan []int16, count),
	}
	for range count {
		p.free <- make([]int16, size)
	}
	return p
}

// BufferSize returns the standard per-buffer capacity in samples.
func (p *BufferPool) BufferSize() int { return p.size }

// Acquire returns a buffer of length n. Requests up to the standard
// capacity are served from the pool when possible; larger requests are
// allocated fresh and will not be recycled.
func (p *BufferPool) Acquire(n int) []int16 {
	if n > p.size {
		return make([]int16, n)
	}
	select {
	case buf := <-p.free:
		return buf[:n]
	default:
		return make([]int16, n, p.size)
	}
}

// Release returns a buffer to the pool. Buffers whose capacity differs from
// the standard size are dropped, as are returns beyond the pool's capacity.
func (p *BufferPool) Release(buf []int16) {
	if cap(buf) != p.size {
		return
	}
	select {
	case p.free <- buf[:p.size]:
	default:
	}
}
