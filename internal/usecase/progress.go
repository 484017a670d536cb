package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

const notifyTimeout = 2 * time.Second

// ProgressDispatcher fans progress events out to notifiers on its own
// goroutine. NotifyProgress never blocks: when the buffer is full the event
// is dropped, since a later event supersedes it anyway.
type ProgressDispatcher struct {
	notifiers []repository.ProgressNotifier
	events    chan entity.ProgressEvent
	logger    *zap.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewProgressDispatcher(buffer int, logger *zap.Logger, m *metrics.Metrics, notifiers ...repository.ProgressNotifier) *ProgressDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &ProgressDispatcher{
		notifiers: notifiers,
		events:    make(chan entity.ProgressEvent, buffer),
		logger:    logger,
		metrics:   m,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// NotifyProgress implements repository.ProgressNotifier.
func (d *ProgressDispatcher) NotifyProgress(_ context.Context, event entity.ProgressEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil
	}
	select {
	case d.events <- event:
	default:
		d.metrics.IncProgressDropped()
	}
	return nil
}

func (d *ProgressDispatcher) loop() {
	defer d.wg.Done()
	for event := range d.events {
		for _, n := range d.notifiers {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			if err := n.NotifyProgress(ctx, event); err != nil {
				d.logger.Debug("progress notification failed",
					zap.String("job_id", event.JobID), zap.Error(err))
			}
			cancel()
		}
	}
}

// Close delivers the buffered events and stops the dispatcher. Later
// notifications are discarded.
func (d *ProgressDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
