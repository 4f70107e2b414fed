// Package config provides the configuration schema and loader for the audxd
// noise suppression daemon.
package config

import (
	"github.com/audxlabs/audx-go/pkg/resample"
	"github.com/audxlabs/audx-go/pkg/stream"
)

// LogLevel controls log verbosity for the audxd server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// EngineName selects the denoising backend.
type EngineName string

const (
	// EngineEnergy is the pure-Go adaptive noise gate. Always available.
	EngineEnergy EngineName = "energy"

	// EngineRNNoise is the RNNoise neural suppressor. Requires a binary
	// built with the rnnoise build tag.
	EngineRNNoise EngineName = "rnnoise"
)

// IsValid reports whether e is a recognised engine name.
func (e EngineName) IsValid() bool {
	return e == EngineEnergy || e == EngineRNNoise
}

// Config is the root configuration structure for audxd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the audxd server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxMessageBytes caps the size of a single WebSocket message (one PCM
	// chunk). Streams sending larger messages are dropped.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// EngineConfig selects and tunes the denoising backend shared by all streams.
type EngineConfig struct {
	// Name selects the backend. Defaults to "energy".
	Name EngineName `yaml:"name"`

	// Energy tunes the adaptive noise gate. Ignored for other backends.
	Energy EnergyConfig `yaml:"energy"`
}

// EnergyConfig tunes the energy noise gate engine. Zero values keep the
// engine's built-in defaults.
type EnergyConfig struct {
	// Attenuation is the gain applied to frames judged as noise, in (0, 1].
	Attenuation float64 `yaml:"attenuation"`

	// OpenRatio is the frame-to-floor RMS ratio that opens the gate.
	// Must exceed CloseRatio when both are set.
	OpenRatio float64 `yaml:"open_ratio"`

	// CloseRatio is the frame-to-floor RMS ratio below which the gate
	// closes again.
	CloseRatio float64 `yaml:"close_ratio"`
}

// PipelineConfig holds per-stream processing defaults. A stream-open request
// may override the input rate, quality, and threshold for its own stream.
type PipelineConfig struct {
	// DefaultInputRate is the sample rate assumed for streams that do not
	// declare one, in Hz.
	DefaultInputRate int `yaml:"default_input_rate"`

	// ResampleQuality is the rate converter quality, 0–10.
	ResampleQuality int `yaml:"resample_quality"`

	// VADThreshold is the voice activity probability above which a frame
	// counts as speech, in [0, 1].
	VADThreshold float64 `yaml:"vad_threshold"`

	// PoolBuffers is the number of chunk buffers pre-warmed per stream.
	PoolBuffers int `yaml:"pool_buffers"`

	// PoolBufferSamples is the capacity of each pooled chunk buffer.
	PoolBufferSamples int `yaml:"pool_buffer_samples"`
}

// Default returns the configuration audxd runs with when no file overrides
// it. [LoadFromReader] decodes on top of these values, so omitted keys keep
// their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			LogLevel:        LogInfo,
			MaxMessageBytes: 1 << 20,
		},
		Engine: EngineConfig{
			Name: EngineEnergy,
		},
		Pipeline: PipelineConfig{
			DefaultInputRate:  48000,
			ResampleQuality:   resample.QualityDefault,
			VADThreshold:      stream.DefaultVADThreshold,
			PoolBuffers:       stream.DefaultPoolBuffers,
			PoolBufferSamples: stream.DefaultPoolBufferSamples,
		},
	}
}

// StreamConfig maps the pipeline defaults onto a stream.Config.
func (p PipelineConfig) StreamConfig() stream.Config {
	return stream.Config{
		InputSampleRate:   p.DefaultInputRate,
		ResampleQuality:   p.ResampleQuality,
		VADThreshold:      p.VADThreshold,
		PoolBuffers:       p.PoolBuffers,
		PoolBufferSamples: p.PoolBufferSamples,
	}
}
