package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// ProgressPublisherImpl publishes progress events for consumers outside the
// process.
type ProgressPublisherImpl struct {
	client  *redis.Client
	channel string
}

func NewProgressPublisher(client *redis.Client, channel string) *ProgressPublisherImpl {
	return &ProgressPublisherImpl{client: client, channel: channel}
}

func (r *ProgressPublisherImpl) NotifyProgress(ctx context.Context, event entity.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}
