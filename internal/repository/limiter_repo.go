package repository

import (
	"context"
	"time"
)

// HostLimiter enforces a minimum spacing between requests to the same host.
type HostLimiter interface {
	// Wait blocks until a request to host may be issued.
	Wait(ctx context.Context, host string, spacing time.Duration) error
}
