package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

// Store keeps jobs, runs and results in process memory. Every read returns a
// copy, so callers never observe later writes through a returned value.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	jobs    map[string]stored[entity.JobSpec]
	runs    map[string]stored[entity.JobRun]
	results map[string]stored[entity.Result]
}

// stored carries an insertion sequence to break CreatedAt ties.
type stored[T any] struct {
	seq uint64
	val T
}

func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]stored[entity.JobSpec]),
		runs:    make(map[string]stored[entity.JobRun]),
		results: make(map[string]stored[entity.Result]),
	}
}

func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }
func (s *Store) Runs() *RunRepo { return &RunRepo{s: s} }
func (s *Store) Results() *ResultRepo { return &ResultRepo{s: s} }

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

type JobRepo struct{ s *Store }

func (r *JobRepo) Save(_ context.Context, spec *entity.JobSpec) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.jobs[spec.ID] = stored[entity.JobSpec]{seq: r.s.next(), val: spec.Clone()}
	return nil
}

func (r *JobRepo) FindByID(_ context.Context, id string) (*entity.JobSpec, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	spec := st.val.Clone()
	return &spec, nil
}

func (r *JobRepo) List(_ context.Context) ([]*entity.JobSpec, error) {
	r.s.mu.RLock()
	all := make([]stored[entity.JobSpec], 0, len(r.s.jobs))
	for _, st := range r.s.jobs {
		all = append(all, st)
	}
	r.s.mu.RUnlock()

	slices.SortFunc(all, func(a, b stored[entity.JobSpec]) int {
		if c := b.val.CreatedAt.Compare(a.val.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	out := make([]*entity.JobSpec, len(all))
	for i := range all {
		spec := all[i].val.Clone()
		out[i] = &spec
	}
	return out, nil
}

func (r *JobRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.jobs, id)
	for rid, st := range r.s.runs {
		if st.val.JobID == id {
			delete(r.s.runs, rid)
		}
	}
	for rid, st := range r.s.results {
		if st.val.JobID == id {
			delete(r.s.results, rid)
		}
	}
	return nil
}

type RunRepo struct{ s *Store }

func (r *RunRepo) Save(_ context.Context, run *entity.JobRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[run.JobID]; !ok {
		return repository.ErrNotFound
	}
	seq := r.s.next()
	if prev, ok := r.s.runs[run.ID]; ok {
		seq = prev.seq
	}
	r.s.runs[run.ID] = stored[entity.JobRun]{seq: seq, val: run.Clone()}
	return nil
}

func (r *RunRepo) FindByID(_ context.Context, id string) (*entity.JobRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	run := st.val.Clone()
	return &run, nil
}

func (r *RunRepo) LatestByJob(_ context.Context, jobID string) (*entity.JobRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *stored[entity.JobRun]
	for _, st := range r.s.runs {
		if st.val.JobID != jobID {
			continue
		}
		if latest == nil || newer(st.val.CreatedAt.Compare(latest.val.CreatedAt), st.seq, latest.seq) {
			cur := st
			latest = &cur
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	run := latest.val.Clone()
	return &run, nil
}

func (r *RunRepo) ListByStatus(_ context.Context, status entity.RunStatus) ([]*entity.JobRun, error) {
	r.s.mu.RLock()
	var all []stored[entity.JobRun]
	for _, st := range r.s.runs {
		if st.val.Status == status {
			all = append(all, st)
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(all, func(a, b stored[entity.JobRun]) int {
		if c := a.val.CreatedAt.Compare(b.val.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]*entity.JobRun, len(all))
	for i := range all {
		run := all[i].val.Clone()
		out[i] = &run
	}
	return out, nil
}

type ResultRepo struct{ s *Store }

func (r *ResultRepo) Save(_ context.Context, result *entity.Result) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[result.JobID]; !ok {
		return repository.ErrNotFound
	}
	r.s.results[result.ID] = stored[entity.Result]{seq: r.s.next(), val: result.Clone()}
	return nil
}

func (r *ResultRepo) LatestByJob(_ context.Context, jobID string) (*entity.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *stored[entity.Result]
	for _, st := range r.s.results {
		if st.val.JobID != jobID {
			continue
		}
		if latest == nil || newer(st.val.CreatedAt.Compare(latest.val.CreatedAt), st.seq, latest.seq) {
			cur := st
			latest = &cur
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	res := latest.val.Clone()
	return &res, nil
}

func newer(timeCmp int, seq, otherSeq uint64) bool {
	if timeCmp != 0 {
		return timeCmp > 0
	}
	return seq > otherSeq
}
