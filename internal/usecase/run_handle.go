package usecase

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/extractor"
)

// runHandle is the in-memory state of one queued or running JobRun.
//
// The snapshot is replaced, never mutated, so Status readers take a
// consistent copy without locking. While the handle sits in a queue only the
// scheduler (under its mutex) writes it; once a worker claims it only that
// worker does.
type runHandle struct {
	spec *entity.JobSpec
	plan *extractor.Plan

	snapshot        atomic.Pointer[entity.JobRun]
	cancelRequested atomic.Bool

	// guarded by Scheduler.mu
	queued bool

	// done is closed once finish has tried to persist the terminal state.
	done     chan struct{}
	doneOnce sync.Once
}

func newRunHandle(spec *entity.JobSpec, plan *extractor.Plan, run *entity.JobRun) *runHandle {
	h := &runHandle{spec: spec, plan: plan, done: make(chan struct{})}
	cp := *run
	h.snapshot.Store(&cp)
	return h
}

func (h *runHandle) load() entity.JobRun {
	return *h.snapshot.Load()
}

// update applies fn to a copy of the current snapshot and publishes it.
func (h *runHandle) update(fn func(run *entity.JobRun)) entity.JobRun {
	next := *h.snapshot.Load()
	fn(&next)
	h.snapshot.Store(&next)
	return next
}

// transition moves the run to status next and applies fn to the new
// snapshot. Moves outside Queued -> Running -> terminal are refused.
func (h *runHandle) transition(next entity.RunStatus, fn func(run *entity.JobRun)) (entity.JobRun, error) {
	cur := *h.snapshot.Load()
	if !cur.Status.CanTransitionTo(next) {
		return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next)
	}
	cur.Status = next
	if fn != nil {
		fn(&cur)
	}
	h.snapshot.Store(&cur)
	return cur, nil
}

func (h *runHandle) markDone() {
	h.doneOnce.Do(func() { close(h.done) })
}
