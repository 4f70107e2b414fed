package stream

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of pipeline processing statistics.
//
// When no frames have been recorded yet, VADMin is 1 and VADMax is 0, so
// the minimum can only fall and the maximum only rise once real
// probabilities arrive. All other fields are zero in that state.
type Stats struct {
	// FramesProcessed counts frames that completed the full pipeline.
	// Frames dropped by a FrameError are not counted.
	FramesProcessed uint64

	// SpeechFrames counts processed frames whose VAD probability exceeded
	// the configured threshold.
	SpeechFrames uint64

	// Voice activity probability aggregates over processed frames.
	VADAvg  float64
	VADMin  float64
	VADMax  float64
	VADLast float64

	// Per-frame processing time aggregates, covering resampling and the
	// engine call together.
	ProcTimeTotal time.Duration
	ProcTimeAvg   time.Duration
	ProcTimeMin   time.Duration
	ProcTimeMax   time.Duration
	ProcTimeLast  time.Duration
}

// StatsCollector accumulates per-frame statistics. Recording happens on the
// pipeline worker; Snapshot and Reset may be called from any goroutine.
type StatsCollector struct {
	mu sync.Mutex

	frames uint64
	speech uint64

	vadSum  float64
	vadMin  float64
	vadMax  float64
	vadLast float64

	ptTotal time.Duration
	ptMin   time.Duration
	ptMax   time.Duration
	ptLast  time.Duration
}

// NewStatsCollector returns a collector in the empty state.
func NewStatsCollector() *StatsCollector {
	c := &StatsCollector{}
	c.resetLocked()
	return c
}

// Record adds one processed frame's measurements.
func (c *StatsCollector) Record(vad float64, speech bool, procTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	if speech {
		c.speech++
	}

	c.vadSum += vad
	c.vadLast = vad
	if vad < c.vadMin {
		c.vadMin = vad
	}
	if vad > c.vadMax {
		c.vadMax = vad
	}

	c.ptTotal += procTime
	c.ptLast = procTime
	if c.frames == 1 || procTime < c.ptMin {
		c.ptMin = procTime
	}
	if procTime > c.ptMax {
		c.ptMax = procTime
	}
}

// Snapshot returns the current statistics without modifying them.
func (c *StatsCollector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		FramesProcessed: c.frames,
		SpeechFrames:    c.speech,
		VADMin:          c.vadMin,
		VADMax:          c.vadMax,
		VADLast:         c.vadLast,
		ProcTimeTotal:   c.ptTotal,
		ProcTimeMin:     c.ptMin,
		ProcTimeMax:     c.ptMax,
		ProcTimeLast:    c.ptLast,
	}
	if c.frames > 0 {
		s.VADAvg = c.vadSum / float64(c.frames)
		s.ProcTimeAvg = c.ptTotal / time.Duration(c.frames)
	}
	return s
}

// Reset returns the collector to the empty state, restoring the VADMin and
// VADMax sentinels.
func (c *StatsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *StatsCollector) resetLocked() {
	c.frames = 0
	c.speech = 0
	c.vadSum = 0
	c.vadMin = 1
	c.vadMax = 0
	c.vadLast = 0
	c.ptTotal = 0
	c.ptMin = 0
	c.ptMax = 0
	c.ptLast = 0
}
