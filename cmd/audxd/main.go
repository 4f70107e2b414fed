// Command audxd serves the noise suppression pipeline over WebSocket, with
// health and Prometheus metrics endpoints alongside.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/audxlabs/audx-go/internal/config"
	"github.com/audxlabs/audx-go/internal/observe"
	"github.com/audxlabs/audx-go/internal/server"
	"github.com/audxlabs/audx-go/pkg/denoise"
	"github.com/audxlabs/audx-go/pkg/denoise/energy"
	"github.com/audxlabs/audx-go/pkg/denoise/rnnoise"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (empty runs on defaults)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "audxd: config file %q not found — see configs/example.yaml\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "audxd: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("audxd starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"engine", cfg.Engine.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "audxd",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Denoising engine ──────────────────────────────────────────────────────
	engine, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(cfg, engine).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			slog.Info("listening with TLS", "addr", cfg.Server.ListenAddr)
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			slog.Info("listening", "addr", cfg.Server.ListenAddr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildEngine constructs the configured denoising engine. When the rnnoise
// engine is requested but the binary was built without the rnnoise tag, the
// daemon falls back to the pure-Go energy gate with a warning instead of
// refusing to start.
func buildEngine(cfg *config.Config) (denoise.Engine, error) {
	switch cfg.Engine.Name {
	case config.EngineRNNoise:
		eng, err := rnnoise.New()
		if errors.Is(err, rnnoise.ErrNotBuilt) {
			slog.Warn("rnnoise engine not compiled in, falling back to energy gate")
			return energyEngine(cfg), nil
		}
		if err != nil {
			return nil, fmt.Errorf("rnnoise engine: %w", err)
		}
		return eng, nil
	case config.EngineEnergy, "":
		return energyEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine.Name)
	}
}

// energyEngine applies the optional tuning overrides from the config. Zero
// values keep the engine defaults.
func energyEngine(cfg *config.Config) *energy.Engine {
	var opts []energy.Option
	if cfg.Engine.Energy.Attenuation != 0 {
		opts = append(opts, energy.WithAttenuation(cfg.Engine.Energy.Attenuation))
	}
	if cfg.Engine.Energy.OpenRatio != 0 {
		opts = append(opts, energy.WithOpenRatio(cfg.Engine.Energy.OpenRatio))
	}
	if cfg.Engine.Energy.CloseRatio != 0 {
		opts = append(opts, energy.WithCloseRatio(cfg.Engine.Energy.CloseRatio))
	}
	return energy.New(opts...)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
