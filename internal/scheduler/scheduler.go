package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/metrics"
)

// Refresher runs one fetch -> merge -> persist cycle.
type Refresher interface {
	Refresh(ctx context.Context) (electricity.Snapshot, error)
}

// State of the refresh cycle.
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
)

// Status is a point-in-time view of the scheduler.
type Status struct {
	State        State      `json:"state"`
	LastCycleID  string     `json:"lastCycleId,omitempty"`
	LastStarted  *time.Time `json:"lastStarted,omitempty"`
	LastFinished *time.Time `json:"lastFinished,omitempty"`
	LastSuccess  *time.Time `json:"lastSuccess,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Runs         int        `json:"runs"`
	Skipped      int        `json:"skipped"`
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for the timestamps recorded in Status.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTimeout bounds a single cycle.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// Scheduler periodically refreshes the electricity snapshot. At most one
// cycle runs at a time; triggers arriving during a cycle are dropped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
	metrics   metrics.Recorder

	running atomic.Bool
	started atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New creates a new Scheduler.
func New(refresher Refresher, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		timeout:   time.Minute,
		now:       time.Now,
		log:       zerolog.Nop(),
		metrics:   metrics.Noop{},
		status:    Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one cycle immediately, then schedules a cycle every interval.
// A failing startup cycle is logged and does not prevent scheduling.
func (s *Scheduler) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	s.Trigger(context.Background())

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		s.Trigger(context.Background())
	})
	if err != nil {
		s.started.Store(false)
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info().Dur("interval", s.interval).Msg("scheduler: started")
	return nil
}

// Stop stops the scheduler and cancels any future cycles. A cycle already
// in progress runs to completion.
func (s *Scheduler) Stop() {
	if s.started.CompareAndSwap(true, false) {
		s.scheduler.Stop()
		s.log.Info().Msg("scheduler: stopped")
	}
}

// Trigger runs a cycle now unless one is already running. It reports whether
// a cycle ran. Errors are recorded and logged, never returned.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		s.metrics.IncRefreshSkipped()
		s.log.Warn().Msg("scheduler: refresh already in progress, skipping")
		return false
	}
	defer s.running.Store(false)

	cycleID := uuid.NewString()
	started := s.now()
	s.mu.Lock()
	s.status.State = StateRefreshing
	s.status.LastCycleID = cycleID
	s.status.LastStarted = &started
	s.mu.Unlock()

	log := s.log.With().Str("cycle", cycleID).Logger()
	log.Info().Msg("scheduler: running refresh")

	err := s.runCycle(ctx)
	finished := s.now()

	s.mu.Lock()
	s.status.State = StateIdle
	s.status.LastFinished = &finished
	s.status.Runs++
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastSuccess = &finished
	}
	s.mu.Unlock()

	elapsed := finished.Sub(started)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.OutcomeFailure, elapsed)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("scheduler: refresh failed")
		return true
	}
	s.metrics.ObserveRefresh(metrics.OutcomeSuccess, elapsed)
	s.metrics.SetLastSuccessfulRefresh(finished)
	log.Info().Dur("elapsed", elapsed).Msg("scheduler: completed refresh")
	return true
}

// runCycle shields the scheduler from a panicking refresher.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err = s.refresher.Refresh(ctx)
	return err
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return "refresh panicked: " + toString(p.value)
}

func toString(v any) string {
	switch t := v.(type) {
	case error:
		return t.Error()
	case string:
		return t
	default:
		return "unknown panic"
	}
}
