package domain

import "time"

// CacheOptions configures the Frame Cache and its prefetcher.
type CacheOptions struct {
	CacheDurationMS  int  // target cache window, default 20000
	TimerIntervalMS  int  // prefetcher tick interval, default 10
	SampleWindowMS   int  // retrieval-cost sample window, default 30000
	SampleRetentionMS int // retrieval-cost sample retention, default 10000
	Enabled          bool // default true
}

// DefaultCacheOptions mirrors spec §3 defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		CacheDurationMS:   20000,
		TimerIntervalMS:   10,
		SampleWindowMS:    30000,
		SampleRetentionMS: 10000,
		Enabled:           true,
	}
}

func (o CacheOptions) CacheDuration() time.Duration {
	return time.Duration(o.CacheDurationMS) * time.Millisecond
}

func (o CacheOptions) TimerInterval() time.Duration {
	return time.Duration(o.TimerIntervalMS) * time.Millisecond
}

func (o CacheOptions) SampleRetention() time.Duration {
	return time.Duration(o.SampleRetentionMS) * time.Millisecond
}

// StreamerOptions configures the Streamer Supervisor's error/success budget.
type StreamerOptions struct {
	ExitOnError            bool
	ErrorThreshold          int // consecutive errors
	ErrorTimeWindowSeconds  int
	ErrorTimeThreshold      int // count within window
	SuccessThreshold        int // consecutive successes that clears error state
	FPSTimeRangeSeconds     int // sliding window for fps measurement
}

func DefaultStreamerOptions() StreamerOptions {
	return StreamerOptions{
		ExitOnError:            true,
		ErrorThreshold:         5,
		ErrorTimeWindowSeconds: 10,
		ErrorTimeThreshold:     10,
		SuccessThreshold:       2,
		FPSTimeRangeSeconds:    5,
	}
}

func (o StreamerOptions) ErrorTimeWindow() time.Duration {
	return time.Duration(o.ErrorTimeWindowSeconds) * time.Second
}

func (o StreamerOptions) FPSTimeRange() time.Duration {
	return time.Duration(o.FPSTimeRangeSeconds) * time.Second
}

// SeekReadSample is an observed (seek_ms, read_ms) cost at a point in time,
// used by the prefetcher to estimate retrieval cost.
type SeekReadSample struct {
	Timestamp time.Time
	SeekMS    float64
	ReadMS    float64
}
