// Package mock provides test doubles for the denoise package interfaces.
//
// Use Engine to verify session creation and to supply a scripted Session.
// Session copies input to output unchanged, so tests can follow samples
// through a pipeline, and returns scripted probabilities and errors in call
// order.
//
// Example:
//
//	sess := &mock.Session{
//	    Results: []mock.ProcessResult{{Probability: 0.9}, {Err: errBoom}},
//	}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/audxlabs/audx-go/pkg/denoise"
)

// Engine is a mock implementation of denoise.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, NewSession returns a new
	// default Session.
	Session denoise.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Rate and Frame override the reported sample rate and frame size.
	// Zero values fall back to the denoise package constants. Overriding
	// lets pipeline tests run with tiny frames.
	Rate  int
	Frame int

	// NewSessionCount is the number of times NewSession was called.
	NewSessionCount int
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession() (denoise.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCount++
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// SampleRate returns Rate, or denoise.SampleRate when unset.
func (e *Engine) SampleRate() int {
	if e.Rate != 0 {
		return e.Rate
	}
	return denoise.SampleRate
}

// FrameSize returns Frame, or denoise.FrameSize when unset.
func (e *Engine) FrameSize() int {
	if e.Frame != 0 {
		return e.Frame
	}
	return denoise.FrameSize
}

// Ensure Engine implements denoise.Engine at compile time.
var _ denoise.Engine = (*Engine)(nil)

// ProcessResult scripts the return values of one Process call.
type ProcessResult struct {
	Probability float64
	Err         error
}

// ProcessCall records a single invocation of Session.Process.
type ProcessCall struct {
	// In is a copy of the frame passed to Process.
	In []int16
}

// Session is a mock implementation of denoise.Session. Process copies the
// input frame to the output unchanged.
type Session struct {
	mu sync.Mutex

	// Results are returned by successive Process calls in order. Once
	// exhausted, Default is returned instead.
	Results []ProcessResult

	// Default is returned by Process after Results runs out.
	Default ProcessResult

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessCalls records every call to Process in order.
	ProcessCalls []ProcessCall

	// ResetCount is the number of times Reset was called.
	ResetCount int

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// Process records the call, copies in to out, and returns the next scripted
// result.
func (s *Session) Process(in, out []int16) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(in))
	copy(cp, in)
	call := len(s.ProcessCalls)
	s.ProcessCalls = append(s.ProcessCalls, ProcessCall{In: cp})
	copy(out, in)

	res := s.Default
	if call < len(s.Results) {
		res = s.Results[call]
	}
	return res.Probability, res.Err
}

// Reset records the call by incrementing ResetCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessCalls = nil
	s.ResetCount = 0
	s.CloseCount = 0
}

// Ensure Session implements denoise.Session at compile time.
var _ denoise.Session = (*Session)(nil)
