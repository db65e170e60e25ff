package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	envVars := []string{
		"METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT",
		"FFMPEG_PATH", "FFPROBE_PATH",
		"CACHE_DURATION_MS", "CACHE_TIMER_INTERVAL_MS", "CACHE_SAMPLE_WINDOW_MS",
		"CACHE_SAMPLE_RETENTION_MS", "CACHE_ENABLED",
		"STREAMER_EXIT_ON_ERROR", "STREAMER_ERROR_THRESHOLD",
		"STREAMER_ERROR_TIME_WINDOW_SECONDS", "STREAMER_ERROR_TIME_THRESHOLD",
		"STREAMER_SUCCESS_THRESHOLD", "STREAMER_FPS_TIME_RANGE_SECONDS",
		"OTEL_SERVICE_NAME",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"MetricsAddr", cfg.MetricsAddr, ":9090"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"FFMPEGPath", cfg.FFMPEGPath, "ffmpeg"},
		{"FFProbePath", cfg.FFProbePath, "ffprobe"},
		{"CacheDurationMS", cfg.CacheOptions.CacheDurationMS, 20000},
		{"TimerIntervalMS", cfg.CacheOptions.TimerIntervalMS, 10},
		{"SampleWindowMS", cfg.CacheOptions.SampleWindowMS, 30000},
		{"SampleRetentionMS", cfg.CacheOptions.SampleRetentionMS, 10000},
		{"CacheEnabled", cfg.CacheOptions.Enabled, true},
		{"ExitOnError", cfg.StreamerOptions.ExitOnError, true},
		{"ErrorThreshold", cfg.StreamerOptions.ErrorThreshold, 5},
		{"ErrorTimeWindowSeconds", cfg.StreamerOptions.ErrorTimeWindowSeconds, 10},
		{"ErrorTimeThreshold", cfg.StreamerOptions.ErrorTimeThreshold, 10},
		{"SuccessThreshold", cfg.StreamerOptions.SuccessThreshold, 2},
		{"FPSTimeRangeSeconds", cfg.StreamerOptions.FPSTimeRangeSeconds, 5},
		{"OTELServiceName", cfg.OTELServiceName, "videoengine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"METRICS_ADDR":                        ":9999",
		"LOG_LEVEL":                           "DEBUG",
		"LOG_FORMAT":                          "JSON",
		"FFMPEG_PATH":                         "/usr/bin/ffmpeg",
		"FFPROBE_PATH":                        "/usr/bin/ffprobe",
		"CACHE_DURATION_MS":                   "5000",
		"CACHE_TIMER_INTERVAL_MS":             "20",
		"CACHE_SAMPLE_WINDOW_MS":              "15000",
		"CACHE_SAMPLE_RETENTION_MS":           "4000",
		"CACHE_ENABLED":                       "false",
		"STREAMER_EXIT_ON_ERROR":              "false",
		"STREAMER_ERROR_THRESHOLD":            "8",
		"STREAMER_ERROR_TIME_WINDOW_SECONDS":  "20",
		"STREAMER_ERROR_TIME_THRESHOLD":       "15",
		"STREAMER_SUCCESS_THRESHOLD":          "3",
		"STREAMER_FPS_TIME_RANGE_SECONDS":     "8",
		"OTEL_SERVICE_NAME":                   "myengine",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"MetricsAddr", cfg.MetricsAddr, ":9999"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"FFMPEGPath", cfg.FFMPEGPath, "/usr/bin/ffmpeg"},
		{"FFProbePath", cfg.FFProbePath, "/usr/bin/ffprobe"},
		{"CacheDurationMS", cfg.CacheOptions.CacheDurationMS, 5000},
		{"TimerIntervalMS", cfg.CacheOptions.TimerIntervalMS, 20},
		{"SampleWindowMS", cfg.CacheOptions.SampleWindowMS, 15000},
		{"SampleRetentionMS", cfg.CacheOptions.SampleRetentionMS, 4000},
		{"CacheEnabled", cfg.CacheOptions.Enabled, false},
		{"ExitOnError", cfg.StreamerOptions.ExitOnError, false},
		{"ErrorThreshold", cfg.StreamerOptions.ErrorThreshold, 8},
		{"ErrorTimeWindowSeconds", cfg.StreamerOptions.ErrorTimeWindowSeconds, 20},
		{"ErrorTimeThreshold", cfg.StreamerOptions.ErrorTimeThreshold, 15},
		{"SuccessThreshold", cfg.StreamerOptions.SuccessThreshold, 3},
		{"FPSTimeRangeSeconds", cfg.StreamerOptions.FPSTimeRangeSeconds, 8},
		{"OTELServiceName", cfg.OTELServiceName, "myengine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback bool
		want     bool
	}{
		{"empty falls back true", "", true, true},
		{"empty falls back false", "", false, false},
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"invalid falls back", "nah", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envVal)
			got := getEnvBool("TEST_BOOL_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := LoadConfig()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}

	t.Setenv("LOG_LEVEL", "Warn")
	cfg = LoadConfig()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "warn")
	}
}
