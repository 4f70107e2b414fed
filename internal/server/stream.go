package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/audxlabs/audx-go/internal/observe"
	"github.com/audxlabs/audx-go/pkg/pcm"
	"github.com/audxlabs/audx-go/pkg/stream"
)

// Stream protocol, all on one WebSocket connection:
//
//	client → server   text   stream-open request (first message, JSON)
//	client → server   binary little-endian int16 PCM chunk at the input rate
//	client → server   text   {"type": "flush" | "stats" | "reset_stats"}
//	server → client   text   "opened" ack, then "vad" / "error" / "stats" events
//	server → client   binary denoised little-endian int16 PCM
//
// Closing the connection flushes and tears down the pipeline; buffered audio
// that was never flushed is processed but its output has nowhere to go.

// openRequest is the first client message. Absent fields fall back to the
// daemon's configured pipeline defaults; quality and threshold use pointers
// because zero is a valid value for both.
type openRequest struct {
	InputSampleRate int      `json:"input_sample_rate"`
	ResampleQuality *int     `json:"resample_quality"`
	VADThreshold    *float64 `json:"vad_threshold"`
}

// openedEvent acknowledges a stream-open request.
type openedEvent struct {
	Type            string `json:"type"` // "opened"
	StreamID        string `json:"stream_id"`
	InputSampleRate int    `json:"input_sample_rate"`
	InputFrameSize  int    `json:"input_frame_size"`
	EngineRate      int    `json:"engine_rate"`
}

// vadEvent accompanies each denoised audio delivery with the most recent
// frame's voice activity decision.
type vadEvent struct {
	Type        string  `json:"type"` // "vad"
	Probability float64 `json:"probability"`
	Speech      bool    `json:"speech"`
}

// errorEvent reports a dropped frame. The stream keeps running.
type errorEvent struct {
	Type    string `json:"type"` // "error"
	Stage   string `json:"stage"`
	Frame   uint64 `json:"frame"`
	Message string `json:"message"`
}

// statsEvent is the response to a flush or stats request.
type statsEvent struct {
	Type             string  `json:"type"` // "stats"
	FramesProcessed  uint64  `json:"frames_processed"`
	SpeechFrames     uint64  `json:"speech_frames"`
	VADAvg           float64 `json:"vad_avg"`
	VADMin           float64 `json:"vad_min"`
	VADMax           float64 `json:"vad_max"`
	VADLast          float64 `json:"vad_last"`
	ProcTimeTotalSec float64 `json:"proc_time_total_sec"`
	ProcTimeAvgSec   float64 `json:"proc_time_avg_sec"`
	ProcTimeLastSec  float64 `json:"proc_time_last_sec"`
}

// command is a non-audio client request after the stream is open.
type command struct {
	Type string `json:"type"`
}

// wsStream owns one client connection and its pipeline.
type wsStream struct {
	id       string
	conn     *websocket.Conn
	pipeline *stream.Pipeline
	metrics  *observe.Metrics
	engine   string
	ctx      context.Context

	// writeMu serializes messages: audio/VAD events arrive from the pipeline
	// worker goroutine while flush replies come from the read loop.
	writeMu sync.Mutex

	// prevFrames/prevSpeech track the last stats snapshot so each delivery
	// records only its own frames.
	prevFrames uint64
	prevSpeech uint64
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.cfg.Server.MaxMessageBytes)

	ctx, span := observe.StartSpan(r.Context(), "denoise stream",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	log := observe.Logger(ctx)

	cfg, err := s.readOpen(ctx, conn)
	if err != nil {
		log.Warn("stream open rejected", "err", err)
		conn.Close(websocket.StatusPolicyViolation, trimReason(err.Error()))
		return
	}

	p, err := stream.New(cfg, s.engine)
	if err != nil {
		log.Warn("pipeline construction failed", "err", err)
		conn.Close(websocket.StatusPolicyViolation, trimReason(err.Error()))
		return
	}
	defer p.Close()

	ws := &wsStream{
		id:       uuid.NewString(),
		conn:     conn,
		pipeline: p,
		metrics:  s.metrics,
		engine:   string(s.cfg.Engine.Name),
		ctx:      ctx,
	}
	p.OnProcessedAudio(ws.deliverAudio)
	p.OnProcessingError(ws.deliverError)

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)
	log.Info("stream opened",
		"stream_id", ws.id,
		"input_rate", cfg.InputSampleRate,
		"frame_size", p.InputFrameSize(),
	)

	ws.writeJSON(openedEvent{
		Type:            "opened",
		StreamID:        ws.id,
		InputSampleRate: cfg.InputSampleRate,
		InputFrameSize:  p.InputFrameSize(),
		EngineRate:      s.engine.SampleRate(),
	})

	ws.readLoop()

	st := p.Stats()
	log.Info("stream closed",
		"stream_id", ws.id,
		"frames", st.FramesProcessed,
		"speech_frames", st.SpeechFrames,
	)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readOpen reads and validates the stream-open request, merging it over the
// configured pipeline defaults.
func (s *Server) readOpen(ctx context.Context, conn *websocket.Conn) (stream.Config, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return stream.Config{}, fmt.Errorf("read open request: %w", err)
	}
	if typ != websocket.MessageText {
		return stream.Config{}, fmt.Errorf("first message must be a text open request, got binary")
	}

	var req openRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return stream.Config{}, fmt.Errorf("decode open request: %w", err)
	}

	cfg := s.cfg.Pipeline.StreamConfig()
	if req.InputSampleRate != 0 {
		cfg.InputSampleRate = req.InputSampleRate
	}
	if req.ResampleQuality != nil {
		cfg.ResampleQuality = *req.ResampleQuality
	}
	if req.VADThreshold != nil {
		cfg.VADThreshold = *req.VADThreshold
	}
	if err := cfg.Validate(); err != nil {
		return stream.Config{}, err
	}
	return cfg, nil
}

// readLoop consumes client messages until the connection drops.
func (ws *wsStream) readLoop() {
	log := observe.Logger(ws.ctx)
	for {
		typ, data, err := ws.conn.Read(ws.ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			if err := ws.pipeline.Submit(pcm.BytesToInt16(data)); err != nil {
				return
			}
		case websocket.MessageText:
			var cmd command
			if err := json.Unmarshal(data, &cmd); err != nil {
				log.Warn("bad command", "stream_id", ws.id, "err", err)
				continue
			}
			if !ws.handleCommand(cmd) {
				return
			}
		}
	}
}

// handleCommand executes one text command. Returns false when the stream
// should end.
func (ws *wsStream) handleCommand(cmd command) bool {
	switch cmd.Type {
	case "flush":
		out, vad, speech, err := ws.pipeline.FlushSync()
		if err != nil {
			return false
		}
		if len(out) > 0 {
			ws.writeBinary(pcm.Int16ToBytes(out))
			ws.writeJSON(vadEvent{Type: "vad", Probability: vad, Speech: speech})
			ws.recordDelivery(vad)
		}
		ws.writeJSON(statsEventFrom(ws.pipeline.Stats()))
	case "stats":
		ws.writeJSON(statsEventFrom(ws.pipeline.Stats()))
	case "reset_stats":
		ws.pipeline.ResetStats()
		ws.prevFrames, ws.prevSpeech = 0, 0
	default:
		observe.Logger(ws.ctx).Warn("unknown command", "stream_id", ws.id, "type", cmd.Type)
	}
	return true
}

// deliverAudio runs on the pipeline worker goroutine for every completed
// batch of frames.
func (ws *wsStream) deliverAudio(out []int16, vad float64, speech bool) {
	ws.writeBinary(pcm.Int16ToBytes(out))
	ws.writeJSON(vadEvent{Type: "vad", Probability: vad, Speech: speech})
	ws.recordDelivery(vad)
}

// deliverError runs on the pipeline worker goroutine for every dropped frame.
func (ws *wsStream) deliverError(fe *stream.FrameError) {
	ws.metrics.RecordFrameError(ws.ctx, string(fe.Stage))
	observe.Logger(ws.ctx).Warn("frame dropped",
		"stream_id", ws.id,
		"stage", string(fe.Stage),
		"frame", fe.Frame,
		"err", fe.Err,
	)
	ws.writeJSON(errorEvent{
		Type:    "error",
		Stage:   string(fe.Stage),
		Frame:   fe.Frame,
		Message: fe.Err.Error(),
	})
}

// recordDelivery records the frames added since the previous delivery.
func (ws *wsStream) recordDelivery(vad float64) {
	st := ws.pipeline.Stats()
	frames := st.FramesProcessed - ws.prevFrames
	speech := st.SpeechFrames - ws.prevSpeech
	ws.prevFrames = st.FramesProcessed
	ws.prevSpeech = st.SpeechFrames
	ws.metrics.RecordFrames(ws.ctx, ws.engine,
		int64(frames), int64(speech), vad, st.ProcTimeLast.Seconds())
}

func (ws *wsStream) writeBinary(data []byte) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.Write(ws.ctx, websocket.MessageBinary, data)
}

func (ws *wsStream) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.Write(ws.ctx, websocket.MessageText, data)
}

func statsEventFrom(st stream.Stats) statsEvent {
	return statsEvent{
		Type:             "stats",
		FramesProcessed:  st.FramesProcessed,
		SpeechFrames:     st.SpeechFrames,
		VADAvg:           st.VADAvg,
		VADMin:           st.VADMin,
		VADMax:           st.VADMax,
		VADLast:          st.VADLast,
		ProcTimeTotalSec: st.ProcTimeTotal.Seconds(),
		ProcTimeAvgSec:   st.ProcTimeAvg.Seconds(),
		ProcTimeLastSec:  st.ProcTimeLast.Seconds(),
	}
}

// trimReason keeps a close reason within the WebSocket 123-byte limit.
func trimReason(s string) string {
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
