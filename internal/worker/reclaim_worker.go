package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/observability"
	"github.com/spec-kit/video-assignment-service/internal/service"
)

// ErrSweepInFlight is returned when a pass is requested while another one runs.
var ErrSweepInFlight = errors.New("sweep already in flight")

// ErrStopped is returned by RunOnce after Stop was called.
var ErrStopped = errors.New("reclaim worker stopped")

// Sweeper runs one reclaim pass.
type Sweeper interface {
	Sweep(ctx context.Context, timeout time.Duration, now time.Time) (*service.SweepReport, error)
}

// Locker provides a cross-instance lease so only one replica sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// ReclaimWorkerDependencies bundles collaborators.
type ReclaimWorkerDependencies struct {
	Sweeper Sweeper
	Locker  Locker
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Timeout is the assignment timeout passed to every pass.
	Timeout   time.Duration
	Scheduler config.SchedulerConfig
	Clock     func() time.Time
}

// ReclaimWorker runs reclaim passes on a fixed interval with at most one pass in flight.
type ReclaimWorker struct {
	sweeper Sweeper
	locker  Locker
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
	cfg     config.SchedulerConfig
	clock   func() time.Time

	running atomic.Bool

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	cron     *cron.Cron
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewReclaimWorker creates the worker.
func NewReclaimWorker(deps ReclaimWorkerDependencies) *ReclaimWorker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &ReclaimWorker{
		sweeper: deps.Sweeper,
		locker:  deps.Locker,
		logger:  logger,
		metrics: deps.Metrics,
		timeout: deps.Timeout,
		cfg:     deps.Scheduler,
		clock:   clock,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Start schedules passes every configured interval.
func (w *ReclaimWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	if w.cron != nil {
		return nil
	}
	if w.cfg.Interval <= 0 {
		return fmt.Errorf("invalid sweep interval %s", w.cfg.Interval)
	}

	cronLogger := cronLogger{logger: w.logger}
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc("@every "+w.cfg.Interval.String(), w.tick); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	w.cron = c
	w.logger.Info("reclaim worker started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("max_duration", w.cfg.MaxDuration),
		zap.Duration("assignment_timeout", w.timeout))
	return nil
}

func (w *ReclaimWorker) tick() {
	_, err := w.RunOnce(w.baseCtx)
	switch {
	case err == nil, errors.Is(err, ErrSweepInFlight), errors.Is(err, ErrStopped):
	default:
		w.logger.Error("sweep pass failed", zap.Error(err))
	}
}

// RunOnce runs a single pass now. It returns ErrSweepInFlight instead of waiting when
// another pass holds the in-process guard or the distributed lease.
func (w *ReclaimWorker) RunOnce(ctx context.Context) (*service.SweepReport, error) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil, ErrStopped
	}
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	if !w.running.CompareAndSwap(false, true) {
		w.metrics.RecordSweepSkipped("in_process")
		w.logger.Debug("sweep skipped, previous pass still running")
		return nil, ErrSweepInFlight
	}
	defer w.running.Store(false)

	passCtx := ctx
	if w.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, w.cfg.MaxDuration)
		defer cancel()
	}

	if w.locker != nil {
		release, acquired, err := w.locker.TryLock(passCtx, w.leaseTTL())
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !acquired {
			w.metrics.RecordSweepSkipped("lease_held")
			w.logger.Debug("sweep skipped, lease held by another instance")
			return nil, ErrSweepInFlight
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("release sweep lease", zap.Error(err))
			}
		}()
	}

	return w.sweeper.Sweep(passCtx, w.timeout, w.clock())
}

// leaseTTL covers the pass budget plus time for the last write to drain.
func (w *ReclaimWorker) leaseTTL() time.Duration {
	ttl := w.cfg.MaxDuration + w.cfg.DrainTimeout
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

// Stop stops scheduling and waits for in-flight passes until ctx ends. When ctx ends
// first the running pass is cancelled after its current write; the remaining candidates
// are picked up on the next start.
func (w *ReclaimWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	c := w.cron
	w.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		w.logger.Info("reclaim worker stopped")
		return nil
	case <-ctx.Done():
		w.cancel()
		w.logger.Warn("reclaim worker drain timed out")
		return ctx.Err()
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
