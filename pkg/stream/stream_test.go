package stream_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/audxlabs/audx-go/pkg/denoise/mock"
	"github.com/audxlabs/audx-go/pkg/stream"
)

// delivery records one audio callback invocation.
type delivery struct {
	samples int
	vad     float64
	speech  bool
}

// collector gathers callback deliveries from the worker goroutine. Reads are
// safe after a FlushSync or Close, which synchronize with the worker.
type collector struct {
	mu         sync.Mutex
	audio      []int16
	deliveries []delivery
	errs       []*stream.FrameError
}

func (c *collector) attach(p *stream.Pipeline) {
	p.OnProcessedAudio(func(out []int16, vad float64, speech bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.audio = append(c.audio, out...)
		c.deliveries = append(c.deliveries, delivery{samples: len(out), vad: vad, speech: speech})
	})
	p.OnProcessingError(func(fe *stream.FrameError) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.errs = append(c.errs, fe)
	})
}

func (c *collector) samples() []int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

func (c *collector) delivered() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries
}

func (c *collector) errors() []*stream.FrameError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

// newEqualRatePipeline builds a pipeline whose input rate matches the mock
// engine rate, so no resampling happens and samples pass through unchanged.
func newEqualRatePipeline(t *testing.T, sess *mock.Session) (*stream.Pipeline, *collector) {
	t.Helper()
	eng := &mock.Engine{Rate: 16000, Frame: 160}
	if sess != nil {
		eng.Session = sess
	}
	p, err := stream.New(stream.DefaultConfig(16000), eng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	c := &collector{}
	c.attach(p)
	return p, c
}

func TestNew_Validation(t *testing.T) {
	eng := &mock.Engine{}

	tests := []struct {
		name string
		cfg  stream.Config
	}{
		{"rate too low", stream.Config{InputSampleRate: 4000, VADThreshold: 0.5}},
		{"rate too high", stream.Config{InputSampleRate: 400000, VADThreshold: 0.5}},
		{"negative quality", func() stream.Config {
			c := stream.DefaultConfig(48000)
			c.ResampleQuality = -1
			return c
		}()},
		{"quality too high", func() stream.Config {
			c := stream.DefaultConfig(48000)
			c.ResampleQuality = 11
			return c
		}()},
		{"threshold above one", func() stream.Config {
			c := stream.DefaultConfig(48000)
			c.VADThreshold = 1.5
			return c
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := stream.New(tc.cfg, eng); !errors.Is(err, stream.ErrInvalidConfig) {
				t.Errorf("New error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	t.Run("nil engine", func(t *testing.T) {
		if _, err := stream.New(stream.DefaultConfig(48000), nil); !errors.Is(err, stream.ErrInvalidConfig) {
			t.Errorf("New error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("session failure", func(t *testing.T) {
		boom := errors.New("no resources")
		failing := &mock.Engine{NewSessionErr: boom}
		if _, err := stream.New(stream.DefaultConfig(48000), failing); !errors.Is(err, boom) {
			t.Errorf("New error = %v, want wrapped session error", err)
		}
	})
}

func TestPipeline_InputFrameSize(t *testing.T) {
	eng := &mock.Engine{} // 48000 Hz, 480 samples
	p, err := stream.New(stream.DefaultConfig(16000), eng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	if got := p.InputFrameSize(); got != 160 {
		t.Errorf("InputFrameSize = %d, want 160", got)
	}
}

// At equal rates with frame-aligned input, every sample comes back exactly.
func TestPipeline_SampleConservation_EqualRates(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	var input []int16
	var v int16
	// Chunk sizes straddle frame boundaries but sum to a frame multiple.
	for _, n := range []int{100, 60, 320, 480, 160, 480} {
		chunk := make([]int16, n)
		for i := range chunk {
			chunk[i] = v
			v++
		}
		input = append(input, chunk...)
		if err := p.Submit(chunk); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	tail, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	got := append(c.samples(), tail...)

	if len(got) != len(input) {
		t.Fatalf("output length %d, want %d (exact conservation)", len(got), len(input))
	}
	for i := range input {
		if got[i] != input[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], input[i])
		}
	}
}

// A trailing partial frame is zero-padded at flush, never dropped.
func TestPipeline_FlushPadsPartialFrame(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	if err := p.Submit(make([]int16, 100)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tail, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	if len(c.samples()) != 0 {
		t.Errorf("callback delivered %d samples before flush, want 0", len(c.samples()))
	}
	if len(tail) != 160 {
		t.Fatalf("flush output length %d, want one 160-sample frame", len(tail))
	}
	for i := 100; i < 160; i++ {
		if tail[i] != 0 {
			t.Fatalf("padding sample %d: got %d, want 0", i, tail[i])
		}
	}
	if got := p.Stats().FramesProcessed; got != 1 {
		t.Errorf("FramesProcessed = %d, want 1", got)
	}
}

// One exact frame at equal rates: one frame result, frame-length output,
// nothing left for flush to pad.
func TestPipeline_SingleExactFrame(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	if err := p.Submit(make([]int16, 160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tail, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	if len(tail) != 0 {
		t.Errorf("flush output length %d, want 0 (no partial frame)", len(tail))
	}
	if got := len(c.samples()); got != 160 {
		t.Errorf("callback output length %d, want 160", got)
	}
	if got := p.Stats().FramesProcessed; got != 1 {
		t.Errorf("FramesProcessed = %d, want 1", got)
	}
}

func TestPipeline_IdempotentFlush(t *testing.T) {
	p, _ := newEqualRatePipeline(t, nil)

	if err := p.Submit(make([]int16, 250)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("first FlushSync: %v", err)
	}
	statsAfterFirst := p.Stats()

	again, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("second FlushSync: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second flush produced %d samples, want 0", len(again))
	}
	if got := p.Stats(); got != statsAfterFirst {
		t.Errorf("second flush changed stats: %+v -> %+v", statsAfterFirst, got)
	}
}

// 700 samples at 16 kHz through the 48 kHz engine: the converted output
// length must land within one input frame of the input length.
func TestPipeline_Resampled16kTo48k(t *testing.T) {
	eng := &mock.Engine{} // 48000 Hz, 480 samples
	p, err := stream.New(stream.DefaultConfig(16000), eng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	c := &collector{}
	c.attach(p)

	for range 7 {
		if err := p.Submit(make([]int16, 100)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	tail, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	total := len(c.samples()) + len(tail)

	st := p.Stats()
	if st.FramesProcessed == 0 {
		t.Fatal("expected at least one processed frame")
	}
	// 700 input samples pad to 800 (5 frames of 160); the resampler's
	// interpolation window may hold back a few samples on top.
	frame := p.InputFrameSize()
	if diff := total - 700; diff < -frame || diff > frame {
		t.Errorf("total output %d differs from input 700 by %d, want within ±%d", total, diff, frame)
	}
	if len(c.errors()) != 0 {
		t.Errorf("unexpected frame errors: %v", c.errors())
	}
}

func TestPipeline_VADThresholdAndClamping(t *testing.T) {
	sess := &mock.Session{
		Results: []mock.ProcessResult{
			{Probability: 0.2},
			{Probability: 0.9},
			{Probability: 1.5},  // engine misbehaving: clamp to 1
			{Probability: -0.3}, // clamp to 0
		},
	}
	p, _ := newEqualRatePipeline(t, sess)

	if err := p.Submit(make([]int16, 4*160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	st := p.Stats()
	if st.FramesProcessed != 4 {
		t.Fatalf("FramesProcessed = %d, want 4", st.FramesProcessed)
	}
	// Threshold 0.5: frames 2 and 3 (0.9 and the clamped 1.0) are speech.
	if st.SpeechFrames != 2 {
		t.Errorf("SpeechFrames = %d, want 2", st.SpeechFrames)
	}
	if st.VADMin != 0 || st.VADMax != 1 {
		t.Errorf("VAD extrema = [%g, %g], want [0, 1] after clamping", st.VADMin, st.VADMax)
	}
	if st.VADLast != 0 {
		t.Errorf("VADLast = %g, want 0", st.VADLast)
	}
}

// Every audio delivery carries the voice activity verdict of its final
// frame, so consumers never have to re-derive it from stats and their own
// copy of the threshold.
func TestPipeline_DeliveryCarriesVAD(t *testing.T) {
	sess := &mock.Session{
		Results: []mock.ProcessResult{
			{Probability: 0.9},
			{Probability: 0.2},
		},
	}
	p, c := newEqualRatePipeline(t, sess)

	if err := p.Submit(make([]int16, 160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(make([]int16, 160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	got := c.delivered()
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
	if got[0].vad != 0.9 || !got[0].speech {
		t.Errorf("first delivery = (%g, %t), want (0.9, true)", got[0].vad, got[0].speech)
	}
	if got[1].vad != 0.2 || got[1].speech {
		t.Errorf("second delivery = (%g, %t), want (0.2, false)", got[1].vad, got[1].speech)
	}
}

// FlushSync reports the verdict of the padded tail frame it processes; the
// caller needs no other API to learn whether the tail was speech.
func TestPipeline_FlushReturnsTailVAD(t *testing.T) {
	sess := &mock.Session{
		Default: mock.ProcessResult{Probability: 0.8},
	}
	p, _ := newEqualRatePipeline(t, sess)

	if err := p.Submit(make([]int16, 90)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tail, vad, speech, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if len(tail) != 160 {
		t.Fatalf("flush output length %d, want 160", len(tail))
	}
	if vad != 0.8 || !speech {
		t.Errorf("flush verdict = (%g, %t), want (0.8, true)", vad, speech)
	}

	// An empty second flush repeats the previous frame's verdict.
	tail, vad, speech, err = p.FlushSync()
	if err != nil {
		t.Fatalf("second FlushSync: %v", err)
	}
	if len(tail) != 0 {
		t.Errorf("second flush produced %d samples, want 0", len(tail))
	}
	if vad != 0.8 || !speech {
		t.Errorf("second flush verdict = (%g, %t), want previous (0.8, true)", vad, speech)
	}
}

func TestPipeline_StatsReset(t *testing.T) {
	p, _ := newEqualRatePipeline(t, nil)

	if err := p.Submit(make([]int16, 3*160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if got := p.Stats().FramesProcessed; got != 3 {
		t.Fatalf("FramesProcessed = %d, want 3", got)
	}

	p.ResetStats()
	st := p.Stats()
	if st.FramesProcessed != 0 {
		t.Errorf("FramesProcessed after reset = %d, want 0", st.FramesProcessed)
	}
	if st.VADMin != 1 || st.VADMax != 0 {
		t.Errorf("VAD sentinels after reset = [%g, %g], want [1, 0]", st.VADMin, st.VADMax)
	}

	if err := p.Submit(make([]int16, 2*160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if got := p.Stats().FramesProcessed; got != 2 {
		t.Errorf("FramesProcessed after reset and 2 frames = %d, want 2", got)
	}
}

// A failing frame is dropped and reported; the frames around it still flow.
func TestPipeline_FrameErrorIsolation(t *testing.T) {
	boom := errors.New("transient native failure")
	sess := &mock.Session{
		Results: []mock.ProcessResult{
			{Probability: 0.5},
			{Err: boom},
			{Probability: 0.5},
		},
	}
	p, c := newEqualRatePipeline(t, sess)

	if err := p.Submit(make([]int16, 3*160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	errs := c.errors()
	if len(errs) != 1 {
		t.Fatalf("got %d frame errors, want 1", len(errs))
	}
	fe := errs[0]
	if fe.Stage != stream.StageDenoise {
		t.Errorf("Stage = %q, want %q", fe.Stage, stream.StageDenoise)
	}
	if fe.Frame != 1 {
		t.Errorf("Frame = %d, want 1", fe.Frame)
	}
	if !errors.Is(fe, boom) {
		t.Errorf("errors.Is(fe, boom) = false, want true")
	}

	if got := len(c.samples()); got != 2*160 {
		t.Errorf("output length %d, want %d (failed frame dropped)", got, 2*160)
	}
	if got := p.Stats().FramesProcessed; got != 2 {
		t.Errorf("FramesProcessed = %d, want 2 (failed frame not counted)", got)
	}
}

// Chunks processed strictly in submission order, across many submissions.
func TestPipeline_Ordering(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	var v int16
	for range 40 {
		chunk := make([]int16, 80)
		for i := range chunk {
			chunk[i] = v
			v++
		}
		if err := p.Submit(chunk); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	got := c.samples()
	if len(got) != 40*80 {
		t.Fatalf("output length %d, want %d", len(got), 40*80)
	}
	for i, s := range got {
		if s != int16(i) {
			t.Fatalf("sample %d: got %d, want %d (order broken)", i, s, i)
		}
	}
}

func TestPipeline_EmptySubmit(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	if err := p.Submit(nil); err != nil {
		t.Fatalf("Submit(nil): %v", err)
	}
	if err := p.Submit([]int16{}); err != nil {
		t.Fatalf("Submit(empty): %v", err)
	}
	out, _, _, err := p.FlushSync()
	if err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if len(out) != 0 || len(c.samples()) != 0 {
		t.Error("empty submissions must produce no output")
	}
	if got := p.Stats().FramesProcessed; got != 0 {
		t.Errorf("FramesProcessed = %d, want 0", got)
	}
}

// Close flushes the tail through the audio callback before tearing down.
func TestPipeline_CloseFlushesTail(t *testing.T) {
	sess := &mock.Session{}
	p, c := newEqualRatePipeline(t, sess)

	if err := p.Submit(make([]int16, 90)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(c.samples()); got != 160 {
		t.Errorf("close-time flush delivered %d samples, want one padded frame of 160", got)
	}
	if sess.CloseCount != 1 {
		t.Errorf("session CloseCount = %d, want 1", sess.CloseCount)
	}
}

func TestPipeline_UseAfterClose(t *testing.T) {
	p, _ := newEqualRatePipeline(t, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Submit(make([]int16, 10)); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if _, _, _, err := p.FlushSync(); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("FlushSync after Close = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

// Stats stay readable after Close; closing must not lose recorded frames.
func TestPipeline_StatsAfterClose(t *testing.T) {
	p, _ := newEqualRatePipeline(t, nil)

	if err := p.Submit(make([]int16, 2*160)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := p.Stats().FramesProcessed; got != 2 {
		t.Errorf("FramesProcessed after Close = %d, want 2", got)
	}
}

func TestPipeline_ConcurrentSubmitters(t *testing.T) {
	p, c := newEqualRatePipeline(t, nil)

	const (
		goroutines = 8
		perG       = 25
		chunkLen   = 160
	)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perG {
				if err := p.Submit(make([]int16, chunkLen)); err != nil {
					t.Errorf("Submit: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if _, _, _, err := p.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}

	want := goroutines * perG * chunkLen
	if got := len(c.samples()); got != want {
		t.Errorf("output length %d, want %d", got, want)
	}
	if got := p.Stats().FramesProcessed; got != goroutines*perG {
		t.Errorf("FramesProcessed = %d, want %d", got, goroutines*perG)
	}
}
