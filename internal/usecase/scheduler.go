package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/extractor"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

const persistTimeout = 10 * time.Second

// JobService is what the delivery layer needs from the scheduler.
type JobService interface {
	Submit(ctx context.Context, spec entity.JobSpec) (string, error)
	Get(ctx context.Context, jobID string) (*entity.JobSummary, error)
	Status(ctx context.Context, jobID string) (*entity.JobRun, error)
	Cancel(ctx context.Context, jobID string) error
	Rerun(ctx context.Context, jobID string) (string, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context, status entity.RunStatus) ([]entity.JobSummary, error)
	Result(ctx context.Context, jobID string) (*entity.Result, error)
}

type SchedulerConfig struct {
	Workers          int
	DefaultMaxPages  int
	MaxPagesCap      int
	DefaultRateLimit time.Duration
	Retry            fetcher.RetryPolicy
	// JobTimeouts overrides DefaultJobTimeout per job type.
	JobTimeouts       map[entity.JobType]time.Duration
	DefaultJobTimeout time.Duration
	EmptyPolicy       entity.EmptyPolicy
	RenderEnabled     bool
}

type SchedulerDeps struct {
	Jobs      repository.JobRepository
	Runs      repository.RunRepository
	Results   repository.ResultRepository
	Transport repository.DocumentFetcher
	// SharedLimiter spaces requests across all runs. When nil every run
	// gets its own limiter.
	SharedLimiter repository.HostLimiter
	Notifier      repository.ProgressNotifier
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Scheduler owns the job registry, the per-type FIFO queues and the worker
// pool. Construct one per process with NewScheduler.
type Scheduler struct {
	cfg           SchedulerConfig
	jobs          repository.JobRepository
	runs          repository.RunRepository
	results       repository.ResultRepository
	transport     repository.DocumentFetcher
	sharedLimiter repository.HostLimiter
	notifier      repository.ProgressNotifier
	sink          *ResultSink
	logger        *zap.Logger
	metrics       *metrics.Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[entity.JobType][]*runHandle
	cursor   int
	active   map[string]*runHandle // by job id
	started  bool
	stopping bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, deps SchedulerDeps) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 10
	}
	if cfg.DefaultJobTimeout <= 0 {
		cfg.DefaultJobTimeout = time.Hour
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = fetcher.DefaultRetryPolicy()
	}
	if cfg.EmptyPolicy == "" {
		cfg.EmptyPolicy = entity.EmptyAccept
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:           cfg,
		jobs:          deps.Jobs,
		runs:          deps.Runs,
		results:       deps.Results,
		transport:     deps.Transport,
		sharedLimiter: deps.SharedLimiter,
		notifier:      deps.Notifier,
		sink:          NewResultSink(deps.Results),
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		queues:        make(map[entity.JobType][]*runHandle),
		active:        make(map[string]*runHandle),
		baseCtx:       baseCtx,
		cancelBase:    cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool. Calling it twice has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopping {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("scheduler started", zap.Int("workers", s.cfg.Workers))
}

// Shutdown stops accepting work and waits for workers to finish their
// current job. Queued runs stay persisted as Queued and are picked up by
// Recover on the next start. If ctx expires first, in-flight fetches are
// aborted.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) Submit(ctx context.Context, spec entity.JobSpec) (string, error) {
	plan, err := ValidateSpec(&spec, s.cfg.RenderEnabled)
	if err != nil {
		return "", err
	}
	spec.ID = uuid.NewString()
	if spec.Name == "" {
		spec.Name = string(spec.Type)
	}
	spec.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return "", ErrSchedulerStopped
	}

	if err := s.jobs.Save(ctx, &spec); err != nil {
		return "", fmt.Errorf("failed to save job spec: %w", err)
	}
	if _, err := s.enqueue(ctx, &spec, plan); err != nil {
		return "", err
	}
	s.logger.Info("job submitted", zap.String("job_id", spec.ID), zap.String("type", string(spec.Type)))
	return spec.ID, nil
}

// Rerun queues a new run of an existing job.
func (s *Scheduler) Rerun(ctx context.Context, jobID string) (string, error) {
	spec, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrJobNotFound
		}
		return "", err
	}
	plan, err := ValidateSpec(spec, s.cfg.RenderEnabled)
	if err != nil {
		return "", err
	}
	run, err := s.enqueue(ctx, spec, plan)
	if err != nil {
		return "", err
	}
	s.logger.Info("job re-queued", zap.String("job_id", jobID), zap.String("run_id", run.ID))
	return run.ID, nil
}

// enqueue reserves the job slot, persists a Queued run and hands it to the
// workers. A job never has two live runs.
func (s *Scheduler) enqueue(ctx context.Context, spec *entity.JobSpec, plan *extractor.Plan) (*entity.JobRun, error) {
	run := &entity.JobRun{
		ID:        uuid.NewString(),
		JobID:     spec.ID,
		Status:    entity.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	h := newRunHandle(spec, plan, run)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}
	if cur := s.active[spec.ID]; cur != nil && !cur.load().Status.IsTerminal() {
		s.mu.Unlock()
		return nil, ErrJobActive
	}
	s.active[spec.ID] = h
	s.mu.Unlock()

	if err := s.runs.Save(ctx, run); err != nil {
		s.release(h)
		return nil, fmt.Errorf("failed to save job run: %w", err)
	}

	s.mu.Lock()
	if s.active[spec.ID] != h {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}
	h.queued = true
	s.queues[spec.Type] = append(s.queues[spec.Type], h)
	s.cond.Signal()
	s.mu.Unlock()

	s.metrics.IncSubmitted(string(spec.Type))
	s.notify(h.load())
	return run, nil
}

func (s *Scheduler) release(h *runHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[h.spec.ID] == h {
		delete(s.active, h.spec.ID)
	}
}

// Status returns a snapshot of the job's latest run.
func (s *Scheduler) Status(ctx context.Context, jobID string) (*entity.JobRun, error) {
	s.mu.Lock()
	h := s.active[jobID]
	s.mu.Unlock()
	if h != nil {
		run := h.load()
		return &run, nil
	}
	run, err := s.runs.LatestByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *Scheduler) Get(ctx context.Context, jobID string) (*entity.JobSummary, error) {
	spec, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	summary := &entity.JobSummary{Spec: *spec}
	run, err := s.Status(ctx, jobID)
	switch {
	case err == nil:
		summary.LatestRun = run
	case !errors.Is(err, ErrJobNotFound):
		return nil, err
	}
	return summary, nil
}

// Cancel is idempotent. A queued run is cancelled without ever starting; a
// running one is flagged and stops at its next page boundary. Terminal jobs
// are left untouched.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	h := s.active[jobID]
	if h == nil {
		s.mu.Unlock()
		return s.ensureJob(ctx, jobID)
	}
	if h.load().Status.IsTerminal() {
		s.mu.Unlock()
		return nil
	}
	if h.queued {
		now := time.Now().UTC()
		if _, err := h.transition(entity.StatusCancelled, func(r *entity.JobRun) {
			r.FinishedAt = &now
		}); err != nil {
			s.mu.Unlock()
			return err
		}
		s.removeQueued(h)
		s.mu.Unlock()
		s.metrics.IncDequeued()
		s.logger.Info("queued job cancelled", zap.String("job_id", jobID))
		s.finish(h, false)
		return nil
	}
	h.cancelRequested.Store(true)
	s.mu.Unlock()
	s.logger.Info("cancellation requested", zap.String("job_id", jobID))
	return nil
}

// Delete removes a job with its runs and results. Running jobs must be
// cancelled first. A run that already reached a terminal state but is still
// being persisted is waited for, so its final save cannot outlive the job.
func (s *Scheduler) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	h := s.active[jobID]
	if h != nil {
		switch {
		case h.queued:
			s.removeQueued(h)
			delete(s.active, jobID)
			s.metrics.IncDequeued()
			h = nil
		case !h.load().Status.IsTerminal():
			s.mu.Unlock()
			return ErrJobActive
		}
	}
	s.mu.Unlock()

	if h != nil {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		// finish keeps the handle when its save failed.
		defer s.release(h)
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	s.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

// List returns every job with its latest run, newest first. An empty status
// matches all jobs.
func (s *Scheduler) List(ctx context.Context, status entity.RunStatus) ([]entity.JobSummary, error) {
	specs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.JobSummary, 0, len(specs))
	for _, spec := range specs {
		run, err := s.Status(ctx, spec.ID)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		if status != "" && (run == nil || run.Status != status) {
			continue
		}
		out = append(out, entity.JobSummary{Spec: *spec, LatestRun: run})
	}
	return out, nil
}

// Result returns the job's most recent Result.
func (s *Scheduler) Result(ctx context.Context, jobID string) (*entity.Result, error) {
	res, err := s.results.LatestByJob(ctx, jobID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := s.ensureJob(ctx, jobID); err != nil {
		return nil, err
	}
	return nil, ErrResultNotFound
}

func (s *Scheduler) ensureJob(ctx context.Context, jobID string) error {
	if _, err := s.jobs.FindByID(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	return nil
}

// Recover restores persisted state after a restart: runs left Running are
// failed and Queued runs are queued again. It returns the number re-queued.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	interrupted, err := s.runs.ListByStatus(ctx, entity.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running runs: %w", err)
	}
	now := time.Now().UTC()
	for _, run := range interrupted {
		run.Status = entity.StatusFailed
		run.ErrorMessage = "interrupted by restart"
		run.FinishedAt = &now
		if err := s.runs.Save(ctx, run); err != nil {
			return 0, fmt.Errorf("failed to fail interrupted run %s: %w", run.ID, err)
		}
		s.logger.Warn("run interrupted by restart", zap.String("job_id", run.JobID), zap.String("run_id", run.ID))
	}

	queued, err := s.runs.ListByStatus(ctx, entity.StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to list queued runs: %w", err)
	}
	requeued := 0
	for _, run := range queued {
		spec, err := s.jobs.FindByID(ctx, run.JobID)
		if err != nil {
			s.logger.Warn("skipping queued run without spec", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		plan, err := ValidateSpec(spec, s.cfg.RenderEnabled)
		if err != nil {
			run.Status = entity.StatusFailed
			run.ErrorMessage = err.Error()
			run.FinishedAt = &now
			if err := s.runs.Save(ctx, run); err != nil {
				s.logger.Error("failed to fail unrunnable run", zap.String("run_id", run.ID), zap.Error(err))
			}
			continue
		}

		h := newRunHandle(spec, plan, run)
		s.mu.Lock()
		if s.active[spec.ID] != nil {
			s.mu.Unlock()
			continue
		}
		s.active[spec.ID] = h
		h.queued = true
		s.queues[spec.Type] = append(s.queues[spec.Type], h)
		s.cond.Signal()
		s.mu.Unlock()
		s.metrics.IncSubmitted(string(spec.Type))
		requeued++
	}
	if len(interrupted) > 0 || requeued > 0 {
		s.logger.Info("recovered persisted runs", zap.Int("failed", len(interrupted)), zap.Int("requeued", requeued))
	}
	return requeued, nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		h := s.claim()
		if h == nil {
			return
		}
		s.execute(h)
	}
}

// claim blocks until a run is available or the scheduler stops.
func (s *Scheduler) claim() *runHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopping {
			return nil
		}
		if h := s.popNext(); h != nil {
			h.queued = false
			return h
		}
		s.cond.Wait()
	}
}

// popNext takes the head of the next non-empty queue in round-robin order
// across job types, so no type waits behind another indefinitely.
func (s *Scheduler) popNext() *runHandle {
	n := len(entity.JobTypes)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		t := entity.JobTypes[idx]
		q := s.queues[t]
		if len(q) == 0 {
			continue
		}
		h := q[0]
		q[0] = nil
		s.queues[t] = q[1:]
		s.cursor = (idx + 1) % n
		return h
	}
	return nil
}

func (s *Scheduler) removeQueued(h *runHandle) {
	q := s.queues[h.spec.Type]
	for i, cand := range q {
		if cand == h {
			s.queues[h.spec.Type] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	h.queued = false
}

// finish persists the terminal snapshot and releases the job slot.
func (s *Scheduler) finish(h *runHandle, wasRunning bool) {
	run := h.load()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	defer h.markDone()

	s.metrics.IncFinished(string(h.spec.Type), string(run.Status), wasRunning)
	s.notify(run)
	if err := s.runs.Save(ctx, &run); err != nil {
		// Keep the handle so Status still reports the terminal state.
		s.logger.Error("failed to persist terminal run state",
			zap.String("job_id", run.JobID), zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	s.release(h)
}

func (s *Scheduler) notify(run entity.JobRun) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.NotifyProgress(context.Background(), entity.ProgressEvent{
		JobID:           run.JobID,
		RunID:           run.ID,
		Status:          run.Status,
		ProgressPercent: run.ProgressPercent,
		Page:            run.CurrentPage,
		RecordCount:     run.RecordCount,
		At:              time.Now().UTC(),
	})
}
