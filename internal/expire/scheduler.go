package expire

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/attic/internal/metrics"
)

// Default idle-archival parameters.
const (
	DefaultFastDelay = 30 * time.Second
	DefaultSlowDelay = 5 * time.Minute
	DefaultBatchSize = 32
)

// Scheduler drives incremental archival at idle. It keeps a queue of
// reader strategies; each iteration runs one bounded batch against the
// front reader. A reader that reports more work goes back to the front
// of the queue and the next iteration is scheduled after the fast
// delay; when the whole queue drains it is refilled and the loop slows
// down.
//
// Iterations run on timer goroutines, one at a time; the epoch counter
// makes a canceled timer's pending callback a no-op, so Stop never
// races a running batch into a torn-down engine.
type Scheduler struct {
	engine    *Engine
	retention time.Duration
	fastDelay time.Duration
	slowDelay time.Duration
	batchSize int
	log       *slog.Logger
	metrics   *metrics.Set
	now       func() time.Time

	mu      sync.Mutex
	queue   []ReaderKind
	timer   *time.Timer
	epoch   uint64
	ctx     context.Context
	running bool
}

// SchedulerOptions configures a Scheduler. Zero durations and sizes
// fall back to the defaults.
type SchedulerOptions struct {
	Engine    *Engine
	Retention time.Duration
	FastDelay time.Duration
	SlowDelay time.Duration
	BatchSize int
	Log       *slog.Logger
	Metrics   *metrics.Set
}

// NewScheduler builds an idle-archival scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.FastDelay == 0 {
		opts.FastDelay = DefaultFastDelay
	}
	if opts.SlowDelay == 0 {
		opts.SlowDelay = DefaultSlowDelay
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		engine:    opts.Engine,
		retention: opts.Retention,
		fastDelay: opts.FastDelay,
		slowDelay: opts.SlowDelay,
		batchSize: opts.BatchSize,
		log:       log,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// registeredReaders is the fixed strategy set the queue is (re)filled
// with.
func registeredReaders() []ReaderKind {
	return []ReaderKind{ReadAllVisits, ReadAutoSubframe}
}

// Start arms the first iteration after the fast delay. Calling Start on
// a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx = ctx
	s.queue = registeredReaders()
	s.scheduleLocked(s.fastDelay)
	s.log.Info("idle archival started",
		"retention", s.retention,
		"fast_delay", s.fastDelay,
		"slow_delay", s.slowDelay,
		"batch_size", s.batchSize)
}

// Stop cancels any pending iteration. The pending callback will not
// run. A batch already executing finishes normally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// scheduleLocked arms the timer for the next iteration. Caller holds
// s.mu.
func (s *Scheduler) scheduleLocked(delay time.Duration) {
	epoch := s.epoch
	s.timer = time.AfterFunc(delay, func() { s.iterate(epoch) })
}

// iterate runs one archival batch and re-arms the timer.
func (s *Scheduler) iterate(epoch uint64) {
	s.mu.Lock()
	if !s.running || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == 0 {
		s.queue = registeredReaders()
	}
	reader := s.queue[0]
	s.queue = s.queue[1:]
	ctx := s.ctx
	s.mu.Unlock()

	// Archive everything older than the rolling retention window. A
	// detached engine makes this a no-op; the loop reschedules anyway
	// so teardown order doesn't matter.
	cutoff := s.now().Add(-s.retention)
	more := s.engine.ArchiveSomeOldHistory(ctx, cutoff, reader, s.batchSize)

	if s.metrics != nil {
		s.metrics.LoopIterations.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || epoch != s.epoch {
		return
	}

	if more {
		// This reader found a full batch; give it priority next cycle.
		s.queue = append([]ReaderKind{reader}, s.queue...)
	}

	delay := s.fastDelay
	if len(s.queue) == 0 {
		s.queue = registeredReaders()
		delay = s.slowDelay
	}
	s.scheduleLocked(delay)
}
