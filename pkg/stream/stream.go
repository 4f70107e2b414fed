// Package stream implements a streaming noise suppression pipeline over a
// fixed-rate denoising engine.
//
// Callers submit mono 16-bit PCM in chunks of any size at a configured
// input rate. The pipeline reblocks the audio into the engine's 10 ms
// frames, resamples each frame to the engine rate when the rates differ,
// runs the denoiser, resamples back, and delivers suppressed audio plus
// per-frame voice activity through callbacks. A single worker goroutine
// owns all processing state, so chunks are processed strictly in
// submission order and the engine session is never touched concurrently.
//
// Submit never blocks on processing: chunks are copied into pooled buffers
// and queued without bound. FlushSync and Close run through the same queue,
// so they take effect after everything submitted before them.
package stream

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/audxlabs/audx-go/pkg/denoise"
)

type taskKind int

const (
	taskAudio taskKind = iota
	taskFlush
	taskClose
)

type task struct {
	kind  taskKind
	chunk []int16
	reply chan flushResult
}

// flushResult carries a flush's output and the voice activity verdict of
// its final frame back to the FlushSync caller.
type flushResult struct {
	out    []int16
	vad    float64
	speech bool
}

// Pipeline is the public face of the noise suppression stream. All exported
// methods are safe for concurrent use.
type Pipeline struct {
	pool       *BufferPool
	proc       *processor
	inputFrame int

	mu      sync.Mutex
	queue   []task
	closed  bool
	audioFn func(out []int16, vad float64, speech bool)
	errFn   func(*FrameError)

	notify   chan struct{}
	wg       sync.WaitGroup
	closeErr error
}

// New creates a Pipeline processing audio at cfg.InputSampleRate through a
// session of the given engine. The worker goroutine starts immediately;
// call Close to stop it and release the engine session.
//
// The input-rate frame size is derived from the engine's frame size and
// rate, rounded to the nearest sample. When the input rate differs from the
// engine rate a stateful rate converter is built at cfg.ResampleQuality.
func New(cfg Config, engine denoise.Engine) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine must not be nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engineRate := engine.SampleRate()
	engineFrame := engine.FrameSize()
	inputFrame := int(math.Round(float64(engineFrame) * float64(cfg.InputSampleRate) / float64(engineRate)))

	session, err := engine.NewSession()
	if err != nil {
		return nil, fmt.Errorf("stream: create denoise session: %w", err)
	}

	var conv *RateConverter
	if cfg.InputSampleRate != engineRate {
		conv, err = NewRateConverter(cfg.InputSampleRate, engineRate, inputFrame, cfg.ResampleQuality)
		if err != nil {
			session.Close()
			return nil, err
		}
	}

	poolBuffers := cfg.PoolBuffers
	if poolBuffers == 0 {
		poolBuffers = DefaultPoolBuffers
	}
	poolSize := cfg.PoolBufferSamples
	if poolSize == 0 {
		poolSize = DefaultPoolBufferSamples
	}

	s := &Pipeline{
		pool:       NewBufferPool(poolBuffers, poolSize),
		inputFrame: inputFrame,
		notify:     make(chan struct{}, 1),
	}
	s.proc = newProcessor(NewAggregator(inputFrame), conv, session,
		NewStatsCollector(), cfg.VADThreshold, engineFrame, s.emitError)

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// InputFrameSize returns the pipeline's frame quantum at the input rate.
// Submitted chunks need not align to it.
func (s *Pipeline) InputFrameSize() int { return s.inputFrame }

// OnProcessedAudio registers the callback receiving denoised audio at the
// input rate, together with the voice activity probability of the
// delivery's final frame and whether it cleared the configured speech
// threshold. It is invoked on the worker goroutine whenever submitted
// audio completes at least one frame; the slice is only valid during the
// call, so copy it to retain it. Calling FlushSync or Close from the
// callback deadlocks. Passing nil removes the callback.
func (s *Pipeline) OnProcessedAudio(fn func(out []int16, vad float64, speech bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioFn = fn
}

// OnProcessingError registers the callback receiving per-frame failures.
// It is invoked on the worker goroutine; the pipeline has already moved on
// to the next frame. Without a callback, failures are logged. Calling
// FlushSync or Close from the callback deadlocks. Passing nil removes the
// callback.
func (s *Pipeline) OnProcessingError(fn func(*FrameError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errFn = fn
}

// Submit queues a chunk of input-rate PCM for processing and returns
// without waiting for it. The chunk is copied, so the caller may reuse it
// immediately. Chunks of any size are accepted, including empty ones.
// Returns ErrClosed once Close has begun.
func (s *Pipeline) Submit(chunk []int16) error {
	if len(chunk) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}
		return nil
	}

	buf := s.pool.Acquire(len(chunk))
	copy(buf, chunk)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.pool.Release(buf)
		return ErrClosed
	}
	s.queue = append(s.queue, task{kind: taskAudio, chunk: buf})
	s.mu.Unlock()
	s.wake()
	return nil
}

// FlushSync pads buffered samples to a frame boundary, processes the final
// frame, and returns the resulting audio as a fresh slice owned by the
// caller, along with the voice activity probability and speech verdict of
// the last processed frame. It blocks until every previously submitted
// chunk has been processed. A flush with nothing buffered returns an empty
// result carrying the previous frame's verdict, so flushing twice in a row
// is harmless. Returns ErrClosed once Close has begun.
func (s *Pipeline) FlushSync() (out []int16, vad float64, speech bool, err error) {
	reply := make(chan flushResult, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, 0, false, ErrClosed
	}
	s.queue = append(s.queue, task{kind: taskFlush, reply: reply})
	s.mu.Unlock()
	s.wake()
	res := <-reply
	return res.out, res.vad, res.speech, nil
}

// Stats returns a snapshot of processing statistics. Safe to call at any
// time, including after Close.
func (s *Pipeline) Stats() Stats { return s.proc.stats.Snapshot() }

// ResetStats clears the statistics back to the empty state.
func (s *Pipeline) ResetStats() { s.proc.stats.Reset() }

// Close flushes remaining buffered audio through the pipeline (delivering
// it via the audio callback), releases the engine session and rate
// converter, and stops the worker. It blocks until everything submitted
// before it has been processed. Close is idempotent; subsequent calls
// return nil immediately.
func (s *Pipeline) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = append(s.queue, task{kind: taskClose})
	s.mu.Unlock()
	s.wake()

	s.wg.Wait()
	return s.closeErr
}

// run is the worker goroutine. It drains the task queue in FIFO order and
// owns every piece of processing state until the close task retires it.
func (s *Pipeline) run() {
	defer s.wg.Done()
	for {
		<-s.notify
		for {
			t, ok := s.dequeue()
			if !ok {
				break
			}
			switch t.kind {
			case taskAudio:
				out := s.proc.process(t.chunk)
				s.pool.Release(t.chunk)
				if len(out) > 0 {
					s.emitAudio(out, s.proc.lastVAD, s.proc.lastSpeech)
				}
			case taskFlush:
				out := s.proc.flush()
				cp := make([]int16, len(out))
				copy(cp, out)
				t.reply <- flushResult{out: cp, vad: s.proc.lastVAD, speech: s.proc.lastSpeech}
			case taskClose:
				if out := s.proc.flush(); len(out) > 0 {
					s.emitAudio(out, s.proc.lastVAD, s.proc.lastSpeech)
				}
				s.closeErr = s.proc.close()
				return
			}
		}
	}
}

func (s *Pipeline) dequeue() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return task{}, false
	}
	t := s.queue[0]
	s.queue[0] = task{}
	s.queue = s.queue[1:]
	return t, true
}

// wake signals the worker without blocking; a pending signal is enough.
func (s *Pipeline) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Pipeline) emitAudio(out []int16, vad float64, speech bool) {
	s.mu.Lock()
	fn := s.audioFn
	s.mu.Unlock()
	if fn != nil {
		fn(out, vad, speech)
	}
}

func (s *Pipeline) emitError(fe *FrameError) {
	s.mu.Lock()
	fn := s.errFn
	s.mu.Unlock()
	if fn != nil {
		fn(fe)
		return
	}
	slog.Warn("stream: frame processing failed",
		"stage", string(fe.Stage),
		"frame", fe.Frame,
		"error", fe.Err,
	)
}
