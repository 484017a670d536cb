package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/paginator"
)

const emptyResultWarning = "extraction produced no records; the selectors may no longer match the source"

type runOutcome struct {
	result    *entity.Result
	warning   string
	cancelled bool
	err       error
}

// execute drives one claimed run to a terminal state. It is the only place
// that writes a running run's terminal status.
func (s *Scheduler) execute(h *runHandle) {
	s.metrics.IncDequeued()
	log := s.logger.With(zap.String("job_id", h.spec.ID), zap.String("run_id", h.load().ID))

	if h.cancelRequested.Load() {
		now := time.Now().UTC()
		if _, err := h.transition(entity.StatusCancelled, func(r *entity.JobRun) {
			r.FinishedAt = &now
		}); err != nil {
			log.Error("cannot cancel claimed run", zap.Error(err))
		}
		log.Info("job cancelled before start")
		s.finish(h, false)
		return
	}

	started := time.Now().UTC()
	run, err := h.transition(entity.StatusRunning, func(r *entity.JobRun) {
		r.StartedAt = &started
	})
	if err != nil {
		log.Error("cannot start claimed run", zap.Error(err))
		h.markDone()
		s.release(h)
		return
	}
	s.metrics.IncRunning()
	s.persist(run, log)
	s.notify(run)
	log.Info("job started", zap.String("type", string(h.spec.Type)))

	out := s.safeRun(h, log)

	finished := time.Now().UTC()
	next := entity.StatusCompleted
	switch {
	case out.cancelled:
		next = entity.StatusCancelled
	case out.err != nil:
		next = entity.StatusFailed
	}
	run, err = h.transition(next, func(r *entity.JobRun) {
		r.FinishedAt = &finished
		switch next {
		case entity.StatusFailed:
			r.ErrorMessage = out.err.Error()
		case entity.StatusCompleted:
			r.ProgressPercent = 100
			r.ResultID = out.result.ID
			r.RecordCount = out.result.RecordCount
			r.Warning = out.warning
		}
	})
	if err != nil {
		log.Error("cannot finish run", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("records", run.RecordCount),
		zap.Int("pages", run.CurrentPage),
		zap.Duration("duration", finished.Sub(started)),
	}
	if out.err != nil {
		log.Error("job failed", append(fields, zap.Error(out.err))...)
	} else {
		log.Info("job finished", fields...)
	}
	s.finish(h, true)
}

// safeRun converts a panic anywhere in the pipeline into a failed outcome so
// the worker and the rest of the pool keep going.
func (s *Scheduler) safeRun(h *runHandle, log *zap.Logger) (out runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered panic in worker", zap.Any("panic", r), zap.Stack("stack"))
			out = runOutcome{err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()
	return s.runPipeline(h, log)
}

func (s *Scheduler) runPipeline(h *runHandle, log *zap.Logger) runOutcome {
	spec := h.spec
	runID := h.load().ID
	timeout := s.timeoutFor(spec.Type)
	deadline := time.Now().Add(timeout)

	// Checked before every page: cancellation and the wall-clock limit are
	// both observed only at page boundaries.
	gate := func() error {
		if h.cancelRequested.Load() {
			return errCancelled
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w of %s", ErrJobTimeout, timeout)
		}
		return nil
	}

	limiter := s.sharedLimiter
	if limiter == nil {
		limiter = fetcher.NewHostLimiter()
	}
	f := fetcher.New(s.transport, limiter, s.spacingFor(spec), s.cfg.Retry, log, s.metrics)
	pages, err := paginator.New(spec, h.plan, f, paginator.Options{
		DefaultMaxPages: s.cfg.DefaultMaxPages,
		MaxPagesCap:     s.cfg.MaxPagesCap,
		Gate:            gate,
		Logger:          log,
	})
	if err != nil {
		return runOutcome{err: err}
	}

	var records []entity.Record
	for page, err := range pages.Pages(s.baseCtx) {
		if err != nil {
			if errors.Is(err, errCancelled) {
				return runOutcome{cancelled: true}
			}
			return runOutcome{err: err}
		}
		records = append(records, page.Records...)
		s.metrics.AddRecords(string(spec.Type), len(page.Records))

		run := h.update(func(r *entity.JobRun) {
			r.CurrentPage = page.Number
			r.RecordCount = page.Total
			if p := progressPercent(page.Number, pages.MaxPages()); p > r.ProgressPercent {
				r.ProgressPercent = p
			}
		})
		s.persist(run, log)
		s.notify(run)
		log.Debug("page processed",
			zap.Int("page", page.Number), zap.String("url", page.URL),
			zap.Int("page_records", len(page.Records)), zap.Int("records", page.Total))
	}

	var warning string
	if len(records) == 0 {
		policy := spec.EmptyPolicy
		if policy == "" {
			policy = s.cfg.EmptyPolicy
		}
		switch policy {
		case entity.EmptyFail:
			return runOutcome{err: ErrEmptyResult}
		case entity.EmptyWarn:
			warning = emptyResultWarning
			log.Warn("job produced no records")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	result, err := s.sink.Store(ctx, spec, runID, records)
	if err != nil {
		return runOutcome{err: err}
	}
	return runOutcome{result: result, warning: warning}
}

// persist stores an intermediate snapshot. Failures are logged only: the
// terminal state is persisted again by finish.
func (s *Scheduler) persist(run entity.JobRun, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.runs.Save(ctx, &run); err != nil {
		log.Warn("failed to persist run progress", zap.Error(err))
	}
}

func (s *Scheduler) timeoutFor(t entity.JobType) time.Duration {
	if d, ok := s.cfg.JobTimeouts[t]; ok && d > 0 {
		return d
	}
	return s.cfg.DefaultJobTimeout
}

func (s *Scheduler) spacingFor(spec *entity.JobSpec) time.Duration {
	if spec.Type == entity.JobTypeFileProcessor {
		return 0
	}
	if spec.RateLimitSeconds > 0 {
		return time.Duration(spec.RateLimitSeconds * float64(time.Second))
	}
	return s.cfg.DefaultRateLimit
}

// progressPercent stays below 100 until the run completes.
func progressPercent(page, maxPages int) int {
	if maxPages <= 0 {
		return 0
	}
	p := page * 100 / maxPages
	if p > 99 {
		p = 99
	}
	return p
}
