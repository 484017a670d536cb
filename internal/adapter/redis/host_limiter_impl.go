package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

const hostSlotPrefix = "scraper:host:"

// minPoll bounds how often a waiter re-checks a host slot.
const minPoll = 10 * time.Millisecond

// HostLimiterImpl spaces requests per host across every process sharing the
// Redis instance. A host slot is a key that lives for the spacing interval;
// whoever creates it may issue the request.
type HostLimiterImpl struct {
	client *redis.Client
}

func NewHostLimiter(client *redis.Client) *HostLimiterImpl {
	return &HostLimiterImpl{client: client}
}

// generateKey hashes the host so arbitrary hostnames make safe keys.
func (r *HostLimiterImpl) generateKey(host string) string {
	return fmt.Sprintf("%s%s", hostSlotPrefix, utils.HashURL(host))
}

func (r *HostLimiterImpl) Wait(ctx context.Context, host string, spacing time.Duration) error {
	if spacing <= 0 {
		return ctx.Err()
	}
	key := r.generateKey(host)
	for {
		ok, err := r.client.SetNX(ctx, key, "1", spacing).Result()
		if err != nil {
			return fmt.Errorf("failed to claim host slot: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := r.client.PTTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read host slot ttl: %w", err)
		}
		// -2: expired between calls, -1: no expiry (should not happen).
		if ttl < minPoll {
			ttl = minPoll
		}
		timer := time.NewTimer(ttl)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
