package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/audxlabs/audx-go/pkg/resample"
	"github.com/audxlabs/audx-go/pkg/stream"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty file means "all defaults".
			return cfg, nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes %d must be positive", cfg.Server.MaxMessageBytes))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Engine
	if cfg.Engine.Name != "" && !cfg.Engine.Name.IsValid() {
		errs = append(errs, fmt.Errorf("engine.name %q is invalid; valid values: energy, rnnoise", cfg.Engine.Name))
	}
	eg := cfg.Engine.Energy
	if eg.Attenuation != 0 && (eg.Attenuation < 0 || eg.Attenuation > 1) {
		errs = append(errs, fmt.Errorf("engine.energy.attenuation %.2f is out of range (0, 1]", eg.Attenuation))
	}
	if eg.OpenRatio < 0 {
		errs = append(errs, fmt.Errorf("engine.energy.open_ratio %.2f must not be negative", eg.OpenRatio))
	}
	if eg.CloseRatio < 0 {
		errs = append(errs, fmt.Errorf("engine.energy.close_ratio %.2f must not be negative", eg.CloseRatio))
	}
	if eg.OpenRatio != 0 && eg.CloseRatio != 0 && eg.OpenRatio <= eg.CloseRatio {
		errs = append(errs, fmt.Errorf("engine.energy.open_ratio %.2f must exceed close_ratio %.2f", eg.OpenRatio, eg.CloseRatio))
	}

	// Pipeline
	p := cfg.Pipeline
	if p.DefaultInputRate < stream.MinInputSampleRate || p.DefaultInputRate > stream.MaxInputSampleRate {
		errs = append(errs, fmt.Errorf("pipeline.default_input_rate %d is out of range [%d, %d]",
			p.DefaultInputRate, stream.MinInputSampleRate, stream.MaxInputSampleRate))
	}
	if p.ResampleQuality < resample.QualityMin || p.ResampleQuality > resample.QualityMax {
		errs = append(errs, fmt.Errorf("pipeline.resample_quality %d is out of range [%d, %d]",
			p.ResampleQuality, resample.QualityMin, resample.QualityMax))
	}
	if p.VADThreshold < 0 || p.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.vad_threshold %.2f is out of range [0, 1]", p.VADThreshold))
	}
	if p.PoolBuffers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.pool_buffers %d must not be negative", p.PoolBuffers))
	}
	if p.PoolBufferSamples < 0 {
		errs = append(errs, fmt.Errorf("pipeline.pool_buffer_samples %d must not be negative", p.PoolBufferSamples))
	}

	return errors.Join(errs...)
}
