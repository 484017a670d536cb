package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests per host using one token bucket per host.
// The scheduler builds one per run for job scope and shares a single one
// across runs for host scope.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func NewHostLimiter() *HostLimiter {
	return &HostLimiter{m: make(map[string]*rate.Limiter)}
}

func (hl *HostLimiter) limiterFor(host string, spacing time.Duration) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	limit := rate.Every(spacing)
	if lim, ok := hl.m[host]; ok {
		// The slowest spacing requested for a host wins.
		if limit < lim.Limit() {
			lim.SetLimit(limit)
		}
		return lim
	}
	lim := rate.NewLimiter(limit, 1)
	hl.m[host] = lim
	return lim
}

// Wait blocks until a request to host may be issued.
func (hl *HostLimiter) Wait(ctx context.Context, host string, spacing time.Duration) error {
	if spacing <= 0 {
		return ctx.Err()
	}
	return hl.limiterFor(host, spacing).Wait(ctx)
}
