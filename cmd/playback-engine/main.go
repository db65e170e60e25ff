// Command playback-engine is a thin demo harness for the Video Engine: it
// opens a media file named on the command line, drives playback, and
// exposes /metrics and /healthz for observability. It is not a
// reimplementation of the GUI host (spec §1); it exists so the library can
// be exercised end-to-end and so the Prometheus/otel wiring has somewhere to
// terminate.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"videoengine/internal/app"
	"videoengine/internal/cache"
	"videoengine/internal/decoder"
	"videoengine/internal/domain"
	"videoengine/internal/engine"
	"videoengine/internal/eventbus"
	"videoengine/internal/metrics"
	"videoengine/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), cfg.OTELServiceName)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(logger, 256)
	defer bus.Close()

	dec := decoder.New(decoder.Config{
		FFmpegPath:  cfg.FFMPEGPath,
		FFprobePath: cfg.FFProbePath,
		Logger:      logger,
	})
	defer dec.Close()

	eng := engine.New(engine.Config{
		Decoder:         dec,
		Cache:           cache.New(),
		Bus:             bus,
		CacheOptions:    cfg.CacheOptions,
		StreamerOptions: cfg.StreamerOptions,
		Logger:          logger,
	})

	bus.Subscribe(eventbus.OnError, func(p any) {
		if ee, ok := p.(*domain.EngineError); ok {
			logger.Error("engine error", slog.String("kind", string(ee.Kind)), slog.String("error", ee.Error()))
			return
		}
		if err, ok := p.(error); ok {
			logger.Error("engine error", slog.String("error", err.Error()))
		}
	}, true)

	if path := flagArg(); path != "" {
		if err := eng.OpenFile(rootCtx, path); err != nil {
			logger.Error("open file failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			eng.Play()
		}
	} else {
		logger.Warn("no media file given; pass a path as the first argument")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           otelhttp.NewHandler(mux, "playback-engine"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("playback-engine started", slog.String("metricsAddr", cfg.MetricsAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	eng.Stop(2 * time.Second)

	logger.Info("playback-engine stopped")
}

func flagArg() string {
	if len(os.Args) < 2 {
		return ""
	}
	return os.Args[1]
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
