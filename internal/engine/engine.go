// Package engine implements the Video Engine (spec §4.6): it binds the
// Decoder Adapter, Frame Cache, Clock & Pacer, Seek Arbiter and Streamer
// Supervisor into the playback state machine and publishes lifecycle events
// on the Event Bus. Grounded on the teacher's internal/api/http/
// streaming_fsm.go — a mutex-guarded struct driving a state machine from a
// single goroutine, with a second mutex isolating the seek-request slot from
// the main state lock — generalized from an HLS encoding-job FSM to a
// frame-stepping playback FSM, and on
// internal/services/torrent/engine/anacrolix/engine.go's transition-logging
// idiom for playback/media state changes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"videoengine/internal/cache"
	"videoengine/internal/domain"
	"videoengine/internal/domain/ports"
	"videoengine/internal/eventbus"
	"videoengine/internal/metrics"
	"videoengine/internal/pacer"
	"videoengine/internal/seekarbiter"
	"videoengine/internal/supervisor"
)

// Config bundles an Engine's collaborators and options. Decoder, Cache and
// Bus are required; everything else has a usable zero/default value.
type Config struct {
	Decoder         ports.Decoder
	Cache           *cache.Cache
	Bus             *eventbus.Bus
	CacheOptions    domain.CacheOptions
	StreamerOptions domain.StreamerOptions
	Logger          *slog.Logger

	// Clock overrides wall time; tests supply a fake.
	Clock ports.Clock
}

// Engine is the playback state machine. Exported methods are safe for
// concurrent use by multiple goroutines (the host GUI/API layer may call
// Play/Pause/Seek/etc. from any goroutine while the worker loop runs on its
// own).
type Engine struct {
	decoder ports.Decoder
	cache   *cache.Cache
	bus     *eventbus.Bus
	logger  *slog.Logger
	clock   ports.Clock

	pacerObj *pacer.Pacer
	seek     *seekarbiter.Arbiter
	sup      *supervisor.Supervisor

	cacheOpts domain.CacheOptions

	// decoderMu serializes all decoder access (PositionTo/ReadNext) between
	// the worker loop and the cache prefetcher (spec §5: "vcap is
	// exclusively mutated by the worker; readers ... take a lock").
	decoderMu sync.Mutex

	// mu guards the small state partition: playback/media state, the
	// frame counters, speed and direction, and the current MediaInfo.
	mu            sync.Mutex
	playbackState domain.PlaybackState
	mediaState    domain.MediaState
	nextFrame     int
	currentFrame  int
	backward      bool
	speed         float64
	mediaInfo     domain.MediaInfo
	pendingEOS    bool

	cacheMu      sync.Mutex
	cacheEnabled bool

	samplesMu sync.Mutex
	samples   []domain.SeekReadSample

	prefetchMu     sync.Mutex
	prefetchCancel context.CancelFunc
	prefetchDone   chan struct{}
	// prefetchLimiter throttles prefetchLoop so a misbehaving decoder can
	// never be driven harder than the observed retrieval cost allows; its
	// rate is re-derived from expectedRetrievalCost on every tick.
	prefetchLimiter *rate.Limiter

	baseCtxMu sync.Mutex
	baseCtx   context.Context
}

// New wires an Engine from its collaborators. The worker is not started
// until the first successful OpenFile.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = realClock{}
	}
	streamerOpts := cfg.StreamerOptions

	e := &Engine{
		decoder:      cfg.Decoder,
		cache:        cfg.Cache,
		bus:          cfg.Bus,
		logger:       logger,
		clock:        clk,
		pacerObj:     pacer.New(),
		seek:         seekarbiter.New(),
		cacheOpts:    cfg.CacheOptions,
		cacheEnabled: cfg.CacheOptions.Enabled,
		speed:        1.0,
		prefetchLimiter: rate.NewLimiter(rate.Inf, 1),
	}
	e.sup = supervisor.New(supervisor.Config{
		Options:          streamerOpts,
		Step:             e.step,
		OnFrame:          e.onSupervisorFrame,
		OnError:          e.onSupervisorError,
		OnBudgetExceeded: e.onBudgetExceeded,
		Logger:           logger,
	})
	return e
}

func (e *Engine) composePlayingState(backward bool, speed float64) domain.PlaybackState {
	state := domain.Forward
	if backward {
		state = domain.Backward
	}
	if speed > 1.0 {
		state |= domain.Fast
	}
	return state
}

// setPlaybackState publishes on_playback_state_changed only when the state
// actually changes (spec §5 ordering guarantee).
func (e *Engine) setPlaybackState(s domain.PlaybackState) {
	e.mu.Lock()
	changed := e.playbackState != s
	e.playbackState = s
	e.mu.Unlock()
	if changed {
		e.logger.Debug("playback state changed", slog.String("state", s.String()))
		e.bus.Publish(eventbus.OnPlaybackStateChanged, s)
	}
}

func (e *Engine) setMediaState(s domain.MediaState) {
	e.mu.Lock()
	changed := e.mediaState != s
	e.mediaState = s
	e.mu.Unlock()
	if changed {
		e.bus.Publish(eventbus.OnMediaStateChanged, s)
	}
}

// OpenFile probes path, clears the cache, emits on_media_loaded, transitions
// media to LOADED, reads and emits frame 0, then starts the worker and
// (if enabled) the prefetcher. On failure the engine's state is left
// unchanged and a FileUnsupported error is returned (spec §4.3/§4.6).
func (e *Engine) OpenFile(ctx context.Context, path string) error {
	info, err := e.decoder.Open(ctx, path)
	if err != nil {
		engErr := domain.NewEngineError(domain.FileUnsupported, err)
		e.bus.Publish(eventbus.OnError, engErr)
		return engErr
	}
	if err := info.Validate(); err != nil {
		engErr := domain.NewEngineError(domain.FileUnsupported, err)
		e.bus.Publish(eventbus.OnError, engErr)
		return engErr
	}

	e.stopPrefetch()

	e.baseCtxMu.Lock()
	e.baseCtx = ctx
	e.baseCtxMu.Unlock()

	e.mu.Lock()
	e.playbackState = domain.Stopped
	e.mediaState = domain.Unloaded
	e.mediaInfo = info
	e.nextFrame = 0
	e.currentFrame = 0
	e.backward = false
	e.pendingEOS = false
	e.mu.Unlock()

	e.cache.Clear()
	e.cache.SetCapacity(cache.TargetFrames(e.cacheOpts.CacheDurationMS, info.FPS))
	e.pacerObj.Reset(e.clock.Now())
	e.sup.ResetFrameID()

	e.bus.Publish(eventbus.OnMediaLoaded, info)

	// media_state flips to LOADED before the first frame is emitted: S1's
	// concrete event order places on_media_state_changed(LOADED) ahead of
	// on_frame(A,0), which this follows in preference to §4.6's more loosely
	// ordered prose description of the same sequence.
	e.setMediaState(domain.Loaded)

	frame, ok, err := e.retrieve(ctx, 0)
	if err != nil {
		e.logger.Warn("initial frame read failed", slog.String("error", err.Error()))
	} else if ok {
		e.mu.Lock()
		e.nextFrame = 1
		e.currentFrame = 0
		e.mu.Unlock()
		e.bus.Publish(eventbus.OnFrame, FramePayload{Frame: frame, Index: 0})
	}

	if !e.sup.IsRunning() {
		e.sup.Start(ctx)
	}
	e.cacheMu.Lock()
	enabled := e.cacheEnabled
	e.cacheMu.Unlock()
	if enabled {
		e.startPrefetch(ctx)
	}
	return nil
}

// Play transitions to PLAYING in the current direction, at the current
// speed. A no-op if already playing (round-trip property: play(); play()
// ≡ play()).
func (e *Engine) Play() {
	e.mu.Lock()
	if e.mediaState != domain.Loaded {
		e.mu.Unlock()
		return
	}
	if e.playbackState.IsPlaying() {
		e.mu.Unlock()
		return
	}
	backward, speed := e.backward, e.speed
	e.mu.Unlock()
	e.setPlaybackState(e.composePlayingState(backward, speed))
}

// Pause transitions PLAYING to PAUSED. A no-op outside PLAYING, including
// when already PAUSED.
func (e *Engine) Pause() {
	e.mu.Lock()
	playing := e.playbackState.IsPlaying()
	e.mu.Unlock()
	if !playing {
		return
	}
	e.setPlaybackState(domain.Paused)
}

// StopPlayback transitions to STOPPED from any loaded state.
func (e *Engine) StopPlayback() {
	e.mu.Lock()
	loaded := e.mediaState == domain.Loaded
	e.mu.Unlock()
	if !loaded {
		return
	}
	e.setPlaybackState(domain.Stopped)
}

// Seek registers index as the pending seek target. Out-of-range requests
// ([0, frame_count)) are silently dropped, not reported as errors (spec §7).
func (e *Engine) Seek(index int) {
	e.mu.Lock()
	valid := e.mediaState == domain.Loaded && index >= 0 && index < e.mediaInfo.FrameCount
	e.mu.Unlock()
	if !valid {
		return
	}
	metrics.SeekRequestsTotal.Inc()
	if e.seek.IsPending() {
		metrics.SeekCoalescedTotal.Inc()
	}
	e.seek.Request(index)
}

// SetSpeed clamps speed at the domain minimum and, if currently playing,
// recomposes the playback state (the FAST flag is informational, derived
// from speed > 1.0; it never itself changes speed — spec §9 open question).
func (e *Engine) SetSpeed(speed float64) {
	clamped := domain.ClampSpeed(speed)
	e.mu.Lock()
	e.speed = clamped
	playing := e.playbackState.IsPlaying()
	backward := e.backward
	e.mu.Unlock()
	if playing {
		e.setPlaybackState(e.composePlayingState(backward, clamped))
	}
}

// SetDirection chooses forward or backward stepping for subsequent
// iterations. The distilled spec names no direct setter for BACKWARD play;
// this supplements it (original_source's ePlaybackState carries a BACKWARD
// flag with no visible setter in the filtered source, so the engine exposes
// one directly rather than guessing at the GUI's call path).
func (e *Engine) SetDirection(backward bool) {
	e.mu.Lock()
	e.backward = backward
	playing := e.playbackState.IsPlaying()
	speed := e.speed
	e.mu.Unlock()
	if playing {
		e.setPlaybackState(e.composePlayingState(backward, speed))
	}
}

// EnableCache turns caching (and the prefetcher, if media is loaded) on.
func (e *Engine) EnableCache() {
	e.cacheMu.Lock()
	already := e.cacheEnabled
	e.cacheEnabled = true
	e.cacheMu.Unlock()
	if already {
		return
	}
	e.mu.Lock()
	loaded := e.mediaState == domain.Loaded
	e.mu.Unlock()
	if loaded {
		e.baseCtxMu.Lock()
		ctx := e.baseCtx
		e.baseCtxMu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		e.startPrefetch(ctx)
	}
}

// DisableCache turns caching and the prefetcher off. Cached entries are
// left in place; only lookups/writes stop, and plan_next stops firing.
func (e *Engine) DisableCache() {
	e.cacheMu.Lock()
	e.cacheEnabled = false
	e.cacheMu.Unlock()
	e.stopPrefetch()
}

// ClearCache empties the frame cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Stop stops the prefetcher and the worker loop. See supervisor.Stop for
// the exact timeout semantics.
func (e *Engine) Stop(timeout time.Duration) {
	e.stopPrefetch()
	e.sup.Stop(timeout)
}

// Subscribe/Unsubscribe forward to the engine's event bus.
func (e *Engine) Subscribe(topic eventbus.Topic, fn func(any), blocking bool) eventbus.Token {
	return e.bus.Subscribe(topic, fn, blocking)
}

func (e *Engine) Unsubscribe(token eventbus.Token) {
	e.bus.Unsubscribe(token)
}

// CurrentFrame, NextFrame, PlaybackState, MediaState, MediaInfo and FPS are
// point-in-time snapshots for host introspection/tests.
func (e *Engine) CurrentFrame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentFrame
}

func (e *Engine) NextFrame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextFrame
}

func (e *Engine) PlaybackState() domain.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playbackState
}

func (e *Engine) MediaState() domain.MediaState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mediaState
}

func (e *Engine) MediaInfo() domain.MediaInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mediaInfo
}

func (e *Engine) FPS() float64 {
	return e.sup.FPS()
}

func (e *Engine) IsRunning() bool {
	return e.sup.IsRunning()
}

// FramePayload is the on_frame event payload.
type FramePayload struct {
	Frame domain.Frame
	Index int
}

func (e *Engine) onSupervisorFrame(frame domain.Frame, idx int) {
	metrics.FramesEmittedTotal.Inc()
	metrics.ReportedFPS.Set(e.sup.FPS())
	metrics.ConsecutiveErrors.Set(float64(e.sup.Metrics().ConsecutiveErrs))
	e.bus.Publish(eventbus.OnFrame, FramePayload{Frame: frame, Index: idx})
}

func (e *Engine) onSupervisorError(err error) {
	metrics.WorkerRestartsTotal.Inc()
	metrics.ConsecutiveErrors.Set(float64(e.sup.Metrics().ConsecutiveErrs))
	e.logger.Warn("decoder step error", slog.String("error", err.Error()))
	e.bus.Publish(eventbus.OnError, err)
}

func (e *Engine) onBudgetExceeded(err error) {
	metrics.ErrorBudgetExceededTotal.Inc()
	e.bus.Publish(eventbus.OnError, err)
	e.setPlaybackState(domain.Stopped)
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine{media=%s playback=%s next=%d current=%d}",
		e.MediaState(), e.PlaybackState(), e.NextFrame(), e.CurrentFrame())
}
