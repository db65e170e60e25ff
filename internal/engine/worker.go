package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"videoengine/internal/cache"
	"videoengine/internal/domain"
	"videoengine/internal/metrics"
	"videoengine/internal/pacer"
)

// step is the Supervisor's Step function: one iteration of the playback
// worker loop (spec §4.6).
func (e *Engine) step(ctx context.Context) (domain.Frame, bool, error) {
	e.applyPendingEndOfStream(ctx)

	// A pending seek answers immediately: reset the pacer target to now and
	// return the frame without paying the inter-frame delay, so a dragged
	// seek never stalls behind expected_delay (spec §4.4, §4.6 pseudocode
	// `if is_pending(seek_request): ... return frame`).
	if idx, seeking := e.seek.Consume(); seeking {
		e.mu.Lock()
		backward := e.playbackState.IsBackward()
		e.mu.Unlock()

		frame, ok, err := e.retrieveAndAdvance(ctx, idx, backward)
		if err != nil {
			return domain.Frame{}, false, err
		}
		e.pacerObj.Reset(e.clock.Now())
		return frame, ok, nil
	}

	var frame domain.Frame
	var ok bool

	e.mu.Lock()
	playing := e.playbackState.IsPlaying()
	idx := e.nextFrame
	backward := e.playbackState.IsBackward()
	e.mu.Unlock()

	if playing {
		var err error
		frame, ok, err = e.retrieveAndAdvance(ctx, idx, backward)
		if err != nil {
			return domain.Frame{}, false, err
		}
		e.mu.Lock()
		eos := e.nextFrame >= e.mediaInfo.FrameCount
		if eos {
			e.pendingEOS = true
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	speed, fps := e.speed, e.mediaInfo.FPS
	e.mu.Unlock()
	delay := pacer.ExpectedDelay(fps, speed)
	now := e.clock.Now()
	sleep := e.pacerObj.ScheduleNext(now, delay)
	e.clock.Sleep(sleep)

	return frame, ok, nil
}

// applyPendingEndOfStream performs the rewind-and-stop transition deferred
// from the previous tick's end-of-stream detection, so that on_frame for the
// last frame of the file is always published before on_playback_state_changed
// flips to STOPPED (spec §5 ordering guarantee; §9 open question: reset the
// frame-id counter before emitting STOPPED).
func (e *Engine) applyPendingEndOfStream(ctx context.Context) {
	e.mu.Lock()
	pending := e.pendingEOS
	e.pendingEOS = false
	e.mu.Unlock()
	if !pending {
		return
	}

	e.decoderMu.Lock()
	_, err := e.decoder.PositionTo(ctx, 0)
	e.decoderMu.Unlock()
	if err != nil {
		e.logger.Warn("end-of-stream rewind failed", slog.String("error", err.Error()))
	}

	e.mu.Lock()
	e.nextFrame = 0
	e.currentFrame = 0
	e.mu.Unlock()
	e.sup.ResetFrameID()
	e.setPlaybackState(domain.Stopped)
}

// retrieveAndAdvance retrieves the frame at idx and applies the counter
// advancement rule: current_frame ← idx; next_frame ← idx ± 1 (clamped at 0),
// decremented when backward, incremented otherwise (spec §4.6).
func (e *Engine) retrieveAndAdvance(ctx context.Context, idx int, backward bool) (domain.Frame, bool, error) {
	frame, ok, err := e.retrieve(ctx, idx)
	if err != nil {
		return domain.Frame{}, false, err
	}

	next := idx + 1
	if backward {
		next = idx - 1
	}
	if next < 0 {
		next = 0
	}
	e.mu.Lock()
	e.currentFrame = idx
	e.nextFrame = next
	e.mu.Unlock()
	e.sup.SetFrameID(idx)

	return frame, ok, nil
}

// retrieve implements the retrieval rule: serve from cache if enabled and
// present, otherwise position+read the decoder, recording the observed cost
// and (if enabled) populating the cache on success.
func (e *Engine) retrieve(ctx context.Context, idx int) (domain.Frame, bool, error) {
	e.cacheMu.Lock()
	cacheEnabled := e.cacheEnabled
	e.cacheMu.Unlock()

	if cacheEnabled {
		if frame, ok := e.cache.Get(idx); ok {
			metrics.CacheHitsTotal.Inc()
			return frame, true, nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	frame, ok, seekDur, readDur, err := e.decoderRead(ctx, idx)
	if err != nil {
		return domain.Frame{}, false, domain.NewEngineError(domain.DecoderTransient, err)
	}
	e.recordSample(seekDur, readDur)
	if ok && cacheEnabled {
		e.cache.Put(idx, frame)
		metrics.CacheSizeFrames.Set(float64(e.cache.Len()))
	}
	return frame, ok, nil
}

// decoderRead serializes PositionTo+ReadNext under decoderMu so the worker
// and the cache prefetcher never touch the decoder handle concurrently
// (spec §5).
func (e *Engine) decoderRead(ctx context.Context, idx int) (domain.Frame, bool, time.Duration, time.Duration, error) {
	e.decoderMu.Lock()
	defer e.decoderMu.Unlock()

	seekDur, err := e.decoder.PositionTo(ctx, idx)
	metrics.DecoderSeekDuration.Observe(seekDur.Seconds())
	if err != nil {
		return domain.Frame{}, false, seekDur, 0, err
	}
	frame, ok, readDur, err := e.decoder.ReadNext(ctx)
	metrics.DecoderReadDuration.Observe(readDur.Seconds())
	if err != nil {
		return domain.Frame{}, false, seekDur, readDur, err
	}
	return frame, ok, seekDur, readDur, nil
}

func (e *Engine) recordSample(seekDur, readDur time.Duration) {
	e.samplesMu.Lock()
	defer e.samplesMu.Unlock()
	now := e.clock.Now()
	e.samples = append(e.samples, domain.SeekReadSample{
		Timestamp: now,
		SeekMS:    float64(seekDur.Microseconds()) / 1000,
		ReadMS:    float64(readDur.Microseconds()) / 1000,
	})
	retention := e.cacheOpts.SampleRetention()
	if retention <= 0 {
		return
	}
	cutoff := now.Add(-retention)
	kept := e.samples[:0]
	for _, s := range e.samples {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	e.samples = kept
}

// expectedRetrievalCost is the running average of recent (seek_ms+read_ms)
// samples within sample_retention_ms, falling back to 1000/fps when no
// samples are available (spec §4.7).
func (e *Engine) expectedRetrievalCost(fps float64) time.Duration {
	e.samplesMu.Lock()
	defer e.samplesMu.Unlock()
	if len(e.samples) == 0 {
		if fps <= 0 {
			return 0
		}
		return time.Duration(1000/fps) * time.Millisecond
	}
	var total float64
	for _, s := range e.samples {
		total += s.SeekMS + s.ReadMS
	}
	avg := total / float64(len(e.samples))
	return time.Duration(avg * float64(time.Millisecond))
}

// startPrefetch starts the cache prefetch goroutine, idempotent.
func (e *Engine) startPrefetch(ctx context.Context) {
	e.prefetchMu.Lock()
	defer e.prefetchMu.Unlock()
	if e.prefetchCancel != nil {
		return
	}
	prefetchCtx, cancel := context.WithCancel(ctx)
	e.prefetchCancel = cancel
	e.prefetchDone = make(chan struct{})
	go e.prefetchLoop(prefetchCtx, e.prefetchDone)
}

// stopPrefetch stops the cache prefetch goroutine and waits for it to exit.
func (e *Engine) stopPrefetch() {
	e.prefetchMu.Lock()
	cancel := e.prefetchCancel
	done := e.prefetchDone
	e.prefetchCancel = nil
	e.prefetchDone = nil
	e.prefetchMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// prefetchLoop implements the Frame Cache Prefetcher (spec §4.7): each tick,
// if there is more slack before the next scheduled frame deadline than the
// expected retrieval cost, plan and fetch the next uncached index, bypassing
// (but populating) the cache.
func (e *Engine) prefetchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.Lock()
		current := e.currentFrame
		direction := e.playbackState
		total := e.mediaInfo.FrameCount
		fps := e.mediaInfo.FPS
		e.mu.Unlock()

		e.cacheMu.Lock()
		cacheEnabled := e.cacheEnabled
		e.cacheMu.Unlock()

		if cacheEnabled && total > 0 {
			remaining := e.pacerObj.Remaining(e.clock.Now())
			cost := e.expectedRetrievalCost(fps)
			e.tunePrefetchLimiter(cost)
			if remaining > cost && e.prefetchLimiter.Allow() {
				target := cache.TargetFrames(e.cacheOpts.CacheDurationMS, fps)
				if idx, ok := e.cache.PlanNext(current, direction, total, target); ok {
					e.prefetchOne(ctx, idx)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cacheOpts.TimerInterval()):
		}
	}
}

// tunePrefetchLimiter resizes the prefetch rate limiter to the reciprocal of
// the current expected retrieval cost, burst 1, so the prefetcher can never
// drive the decoder harder than it has actually been observed to sustain
// (spec §4.7 `[FULL]`).
func (e *Engine) tunePrefetchLimiter(cost time.Duration) {
	if cost <= 0 {
		e.prefetchLimiter.SetLimit(rate.Inf)
		return
	}
	e.prefetchLimiter.SetLimit(rate.Every(cost))
}

func (e *Engine) prefetchOne(ctx context.Context, idx int) {
	frame, ok, seekDur, readDur, err := e.decoderRead(ctx, idx)
	if err != nil {
		e.logger.Debug("prefetch read failed", slog.Int("index", idx), slog.String("error", err.Error()))
		return
	}
	e.recordSample(seekDur, readDur)
	if ok {
		e.cache.Put(idx, frame)
		metrics.CacheSizeFrames.Set(float64(e.cache.Len()))
		metrics.PrefetchFetchesTotal.Inc()
	}
}
