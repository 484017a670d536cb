package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
	gate   chan struct{}
	err    error
}

func (r *recordingNotifier) NotifyProgress(ctx context.Context, e entity.ProgressEvent) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestProgressDispatcher_FansOutInOrder(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("subscriber gone")}
	d := NewProgressDispatcher(8, zaptest.NewLogger(t), nil, a, b)

	for i := 1; i <= 3; i++ {
		assert.NoError(t, d.NotifyProgress(context.Background(), entity.ProgressEvent{JobID: "j", Page: i}))
	}
	d.Close()

	assert.Equal(t, 3, a.count())
	assert.Equal(t, 3, b.count())
	for i, e := range a.events {
		assert.Equal(t, i+1, e.Page)
	}

	// Notifications after Close are discarded.
	assert.NoError(t, d.NotifyProgress(context.Background(), entity.ProgressEvent{JobID: "j"}))
	d.Close()
	assert.Equal(t, 3, a.count())
}

func TestProgressDispatcher_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	slow := &recordingNotifier{gate: make(chan struct{})}
	d := NewProgressDispatcher(1, zaptest.NewLogger(t), m, slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = d.NotifyProgress(context.Background(), entity.ProgressEvent{Page: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyProgress blocked on a slow notifier")
	}
	assert.Greater(t, testutil.ToFloat64(m.ProgressDropped), 0.0)

	close(slow.gate)
	d.Close()
	assert.Less(t, slow.count(), 20)
}
