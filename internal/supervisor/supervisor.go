// Package supervisor implements the Streamer Supervisor (spec §4.1): a
// generic worker-loop driver with an error budget, a success budget, and a
// forced-termination escape hatch. Grounded on the teacher's
// mutex-guarded counter idiom in
// internal/services/torrent/engine/anacrolix/engine.go (speedMu-protected
// delta sampling) and its idleReaper background-goroutine-with-cancel
// pattern for the start/stop lifecycle.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"videoengine/internal/domain"
)

// Step is the caller-supplied frame-producing function run on every loop
// iteration. ok=false with err=nil means "nothing to publish this tick" (not
// an error); a non-nil err is treated as a transient failure and counted
// against the error budget.
type Step func(ctx context.Context) (frame domain.Frame, ok bool, err error)

// Supervisor runs Step in a loop until stopped, publishing frames and errors
// and enforcing the configured error budget.
type Supervisor struct {
	opts   domain.StreamerOptions
	step   Step
	onFrame func(domain.Frame, int)
	onError func(error)
	onBudgetExceeded func(error)
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	running          bool
	cancel           context.CancelFunc
	done             chan struct{}
	consecutiveErrs  int
	consecutiveOK    int
	errorEvents      []time.Time
	currentFrameID   int
	frameTimestamps  []time.Time
}

// Config bundles the Supervisor's constructor arguments.
type Config struct {
	Options domain.StreamerOptions
	Step    Step
	OnFrame func(frame domain.Frame, frameIndex int)
	OnError func(error)
	// OnBudgetExceeded fires once, after the worker has already stopped
	// looping, with a domain.BudgetExceeded-wrapped error (spec §7).
	OnBudgetExceeded func(error)
	Logger           *slog.Logger
	// Now overrides time.Now, for tests.
	Now func() time.Time
}

func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Supervisor{
		opts:             cfg.Options,
		step:             cfg.Step,
		onFrame:          cfg.OnFrame,
		onError:          cfg.OnError,
		onBudgetExceeded: cfg.OnBudgetExceeded,
		logger:           logger,
		now:              now,
	}
}

// SetFrameID tells the supervisor which index the next successfully produced
// frame should be published under. The Video Engine calls this from inside
// its step, after retrieving the frame for that index and before the step
// returns, since the supervisor has no notion of seeks or direction on its
// own.
func (s *Supervisor) SetFrameID(idx int) {
	s.mu.Lock()
	s.currentFrameID = idx
	s.mu.Unlock()
}

// ResetFrameID zeroes the published-frame counter (spec §4.1).
func (s *Supervisor) ResetFrameID() {
	s.SetFrameID(0)
}

// Start is idempotent: calling it while already running has no effect.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(loopCtx, done)
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok, err := s.step(ctx)
		if err != nil {
			s.recordError(err)
			if s.onError != nil {
				s.onError(err)
			}
			if s.budgetExceeded() {
				budgetErr := domain.NewEngineError(domain.BudgetExceeded, err)
				if s.onBudgetExceeded != nil {
					s.onBudgetExceeded(budgetErr)
				}
				return
			}
			continue
		}
		if ok {
			s.recordSuccess()
			s.mu.Lock()
			idx := s.currentFrameID
			s.frameTimestamps = append(s.frameTimestamps, s.now())
			s.pruneFPSWindowLocked()
			s.mu.Unlock()
			if s.onFrame != nil {
				s.onFrame(frame, idx)
			}
		}
	}
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveOK = 0
	s.consecutiveErrs++
	s.errorEvents = append(s.errorEvents, s.now())
	s.pruneErrorWindowLocked()
}

func (s *Supervisor) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrs = 0
	s.consecutiveOK++
	if s.consecutiveOK >= s.opts.SuccessThreshold && s.opts.SuccessThreshold > 0 {
		s.errorEvents = s.errorEvents[:0]
	}
}

func (s *Supervisor) budgetExceeded() bool {
	if !s.opts.ExitOnError {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.ErrorThreshold > 0 && s.consecutiveErrs >= s.opts.ErrorThreshold {
		return true
	}
	if s.opts.ErrorTimeThreshold > 0 && len(s.errorEvents) >= s.opts.ErrorTimeThreshold {
		return true
	}
	return false
}

// pruneErrorWindowLocked drops error events older than the configured
// time window. Caller must hold s.mu.
func (s *Supervisor) pruneErrorWindowLocked() {
	window := s.opts.ErrorTimeWindow()
	if window <= 0 {
		return
	}
	cutoff := s.now().Add(-window)
	kept := s.errorEvents[:0]
	for _, t := range s.errorEvents {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.errorEvents = kept
}

// pruneFPSWindowLocked drops frame timestamps outside the fps measurement
// window. Caller must hold s.mu.
func (s *Supervisor) pruneFPSWindowLocked() {
	window := s.opts.FPSTimeRange()
	if window <= 0 {
		return
	}
	cutoff := s.now().Add(-window)
	kept := s.frameTimestamps[:0]
	for _, t := range s.frameTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.frameTimestamps = kept
}

// FPS returns the rolling frame rate over FPSTimeRangeSeconds, measured from
// the timestamps of successfully emitted frames; 0 if fewer than two samples
// are in the window.
func (s *Supervisor) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneFPSWindowLocked()
	n := len(s.frameTimestamps)
	if n < 2 {
		return 0
	}
	span := s.frameTimestamps[n-1].Sub(s.frameTimestamps[0]).Seconds()
	const epsilon = 1e-9
	if span < epsilon {
		span = epsilon
	}
	return float64(n) / span
}

// SupervisorStats is a point-in-time snapshot of the worker loop's internal
// counters, exported for metrics collection.
type SupervisorStats struct {
	Running         bool
	ConsecutiveErrs int
	ConsecutiveOK   int
	ErrorEvents     int
	CurrentFrameID  int
}

// Metrics returns a snapshot of the supervisor's internal counters.
func (s *Supervisor) Metrics() SupervisorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SupervisorStats{
		Running:         s.running,
		ConsecutiveErrs: s.consecutiveErrs,
		ConsecutiveOK:   s.consecutiveOK,
		ErrorEvents:     len(s.errorEvents),
		CurrentFrameID:  s.currentFrameID,
	}
}

// IsRunning reports whether the worker loop is currently running.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop ends the worker loop. With timeout < 0 it cancels the loop context
// and returns at once, without waiting for the worker to exit. With
// timeout >= 0 it first waits up to timeout for the worker to exit on its
// own, which it does only after its error budget is exceeded; no stop signal
// reaches the worker during that wait. It then cancels the loop context,
// which aborts the step in progress, and waits for the worker to exit.
// Safe to call from the worker's own completion path (OnBudgetExceeded
// callback).
func (s *Supervisor) Stop(timeout time.Duration) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	if timeout < 0 {
		cancel()
		return
	}

	select {
	case <-done:
		return
	case <-time.After(timeout):
	}
	cancel()
	if done != nil {
		<-done
	}
}
