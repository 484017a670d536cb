package repository

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrTransientFetch   = errors.New("transient fetch error")
	ErrPermanentFetch   = errors.New("permanent fetch error")
	ErrExtractionConfig = errors.New("invalid extraction config")
)

// FetchError describes a failed fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	// RetryAfter is the server supplied delay of a 429 response, zero if absent.
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error for %s: received status code %d", kind, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the transient/permanent sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransientFetch:
		return e.Transient
	case ErrPermanentFetch:
		return !e.Transient
	}
	return false
}

// ExtractionError reports a selector or pattern that could not be compiled.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrExtractionConfig, e.Err)
	}
	return fmt.Sprintf("%v: field %q: %v", ErrExtractionConfig, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionConfig, e.Err}
}
