package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled unit of work. Errors are logged at the scheduler
// boundary and never propagate further.
type JobFunc func(ctx context.Context) error

// FixedDelayJobID identifies a fixed-delay job.
type FixedDelayJobID int

// OverlapPolicy controls what happens when a job fires while its previous
// run is still in flight.
type OverlapPolicy int

const (
	// AllowOverlap lets runs execute concurrently (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the firing when the previous run is still active.
	SkipIfRunning
	// DelayIfRunning waits for the previous run to finish.
	DelayIfRunning
)

// JobOptions configures a scheduled job.
type JobOptions struct {
	// Name is used for logging (optional).
	Name string
	// Timeout bounds a single run (optional).
	Timeout time.Duration
	// OverlapPolicy controls overlapping runs.
	OverlapPolicy OverlapPolicy
}

// JobHooks contains optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config configures the scheduler.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// jobWrapper pairs a job with its options.
type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex // overlap control
}

// fixedDelayJob tracks one fixed-delay loop.
type fixedDelayJob struct {
	id      FixedDelayJobID
	cancel  context.CancelFunc
	wrapper *jobWrapper
}

// cronLogger adapts the cron logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			key := keysAndValues[i].(string)
			attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
		}
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2+1)
	attrs = append(attrs, slog.Any("error", err))
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			key := keysAndValues[i].(string)
			attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
		}
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// Scheduler runs cron jobs and fixed-delay jobs.
type Scheduler struct {
	cron      *cron.Cron
	cronLog   cron.Logger
	logger    *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	fixedJobs map[FixedDelayJobID]*fixedDelayJob
	nextFixed FixedDelayJobID
	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates a scheduler with a background parent context.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext creates a scheduler whose lifetime is bound to parentCtx.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger.With("component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
		),
		cronLog:   cl,
		logger:    logger,
		hooks:     cfg.JobHooks,
		ctx:       ctx,
		cancel:    cancel,
		fixedJobs: make(map[FixedDelayJobID]*fixedDelayJob),
		nextFixed: 1,
	}
}

// Handle is a cancellable reference to a live cron registration.
type Handle struct {
	id        cron.EntryID
	s         *Scheduler
	name      string
	cancelled atomic.Bool
	runCtx    context.Context
	runCancel context.CancelFunc
}

// Cancel removes the registration so it never fires again. With
// interrupt=false a run already in flight finishes normally; interrupt=true
// additionally cancels the run's context. Cancel is idempotent.
func (h *Handle) Cancel(interrupt bool) {
	if !h.cancelled.CompareAndSwap(false, true) {
		return
	}
	h.s.cron.Remove(h.id)
	if interrupt {
		h.runCancel()
	}
	h.s.logger.Debug("cron job cancelled", "name", h.name, "id", h.id, "interrupt", interrupt)
}

// IsCancelled reports whether Cancel has been called.
func (h *Handle) IsCancelled() bool {
	return h.cancelled.Load()
}

// IsDone reports whether the registration can never fire again for a reason
// other than cancellation; for cron entries that only happens when the
// scheduler itself has stopped.
func (h *Handle) IsDone() bool {
	select {
	case <-h.s.ctx.Done():
		return true
	default:
		return false
	}
}

// Schedule registers job on the given 6-field cron expression and returns a
// cancellable handle. Schedule examples:
//   - "0 */5 * * * *" - every 5 minutes
//   - "@hourly" - every hour
func (s *Scheduler) Schedule(spec string, job JobFunc, opts JobOptions) (*Handle, error) {
	wrapper := &jobWrapper{job: job, options: opts}

	runCtx, runCancel := context.WithCancel(s.ctx)
	h := &Handle{s: s, name: opts.Name, runCtx: runCtx, runCancel: runCancel}

	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(s.cronLog))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(s.cronLog))
	default:
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(spec, chain.Then(cron.FuncJob(func() {
		if h.cancelled.Load() {
			// Firing raced with Cancel; suppress it.
			return
		}
		s.runJob(h.runCtx, wrapper)
	})))
	if err != nil {
		runCancel()
		s.logger.Error("failed to add cron job", "spec", spec, "name", opts.Name, "error", err)
		return nil, err
	}
	h.id = id

	s.logger.Info("cron job added", "spec", spec, "name", opts.Name, "id", id)
	return h, nil
}

// AddFixedDelayJob runs job repeatedly, waiting interval after each run
// completes before starting the next one. Slow runs stretch the effective
// period; there is no catch-up.
func (s *Scheduler) AddFixedDelayJob(interval time.Duration, job JobFunc, opts JobOptions) FixedDelayJobID {
	wrapper := &jobWrapper{job: job, options: opts}

	s.mu.Lock()
	id := s.nextFixed
	s.nextFixed++

	ctx, cancel := context.WithCancel(s.ctx)
	s.fixedJobs[id] = &fixedDelayJob{id: id, cancel: cancel, wrapper: wrapper}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("fixed-delay job stopped", "name", opts.Name, "id", id)
				return
			case <-timer.C:
			}
			s.runJob(ctx, wrapper)
			// Next wait starts after the run completed.
			timer.Reset(interval)
		}
	}()

	s.logger.Info("fixed-delay job added", "interval", interval, "name", opts.Name, "id", id)
	return id
}

// RemoveFixedDelayJob stops the fixed-delay job with the given ID.
func (s *Scheduler) RemoveFixedDelayJob(id FixedDelayJobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.fixedJobs[id]
	if !exists {
		return false
	}

	job.cancel()
	delete(s.fixedJobs, id)

	s.logger.Info("fixed-delay job removed", "id", id, "name", job.wrapper.options.Name)
	return true
}

// Start starts the scheduler. Idempotent.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext stops the scheduler, bounding the wait with ctx. Shutdown
// still completes in the background when the deadline passes first.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, shutdown continues in background")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.mu.Lock()
	for _, job := range s.fixedJobs {
		job.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// runJob executes one firing with overlap control, hooks, timeout and panic
// recovery.
func (s *Scheduler) runJob(ctx context.Context, wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job run, already running", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", jobName, "panic", r)
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(jobName, panicErr)
			}
		}
	}()

	var cancel context.CancelFunc
	if wrapper.options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wrapper.job(ctx)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
	} else {
		s.logger.Debug("job completed", "name", jobName, "duration", duration)
	}
}
