package usecase

import "errors"

var (
	ErrInvalidJobSpec    = errors.New("invalid job spec")
	ErrJobNotFound       = errors.New("job not found")
	ErrResultNotFound    = errors.New("job has no result")
	ErrJobActive         = errors.New("job is queued or running")
	ErrJobTimeout        = errors.New("job exceeded its time limit")
	ErrSchedulerStopped  = errors.New("scheduler is shutting down")
	ErrEmptyResult       = errors.New("extraction produced no records")
	ErrWorkerPanic       = errors.New("internal worker error")
	ErrInvalidTransition = errors.New("invalid run status transition")

	// errCancelled is returned by the page gate once a cancel was observed.
	errCancelled = errors.New("cancellation requested")
)
