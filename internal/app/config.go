package app

import (
	"os"
	"strconv"
	"strings"

	"videoengine/internal/domain"
)

// Config is the process-level configuration for cmd/playback-engine: binary
// paths, the default CacheOptions/StreamerOptions handed to every Engine it
// constructs, and observability bind addresses. It is distinct from, and not
// a reimplementation of, the host application's own config/persistence layer
// (out of scope per spec §1).
type Config struct {
	MetricsAddr string
	LogLevel    string
	LogFormat   string

	FFMPEGPath  string
	FFProbePath string

	CacheOptions    domain.CacheOptions
	StreamerOptions domain.StreamerOptions

	OTELServiceName string
}

func LoadConfig() Config {
	cache := domain.DefaultCacheOptions()
	cache.CacheDurationMS = int(getEnvInt64("CACHE_DURATION_MS", int64(cache.CacheDurationMS)))
	cache.TimerIntervalMS = int(getEnvInt64("CACHE_TIMER_INTERVAL_MS", int64(cache.TimerIntervalMS)))
	cache.SampleWindowMS = int(getEnvInt64("CACHE_SAMPLE_WINDOW_MS", int64(cache.SampleWindowMS)))
	cache.SampleRetentionMS = int(getEnvInt64("CACHE_SAMPLE_RETENTION_MS", int64(cache.SampleRetentionMS)))
	cache.Enabled = getEnvBool("CACHE_ENABLED", cache.Enabled)

	streamer := domain.DefaultStreamerOptions()
	streamer.ExitOnError = getEnvBool("STREAMER_EXIT_ON_ERROR", streamer.ExitOnError)
	streamer.ErrorThreshold = int(getEnvInt64("STREAMER_ERROR_THRESHOLD", int64(streamer.ErrorThreshold)))
	streamer.ErrorTimeWindowSeconds = int(getEnvInt64("STREAMER_ERROR_TIME_WINDOW_SECONDS", int64(streamer.ErrorTimeWindowSeconds)))
	streamer.ErrorTimeThreshold = int(getEnvInt64("STREAMER_ERROR_TIME_THRESHOLD", int64(streamer.ErrorTimeThreshold)))
	streamer.SuccessThreshold = int(getEnvInt64("STREAMER_SUCCESS_THRESHOLD", int64(streamer.SuccessThreshold)))
	streamer.FPSTimeRangeSeconds = int(getEnvInt64("STREAMER_FPS_TIME_RANGE_SECONDS", int64(streamer.FPSTimeRangeSeconds)))

	return Config{
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		FFMPEGPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		CacheOptions:    cache,
		StreamerOptions: streamer,
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "videoengine"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
