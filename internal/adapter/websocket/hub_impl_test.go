package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

func dial(t *testing.T, hub *Hub, jobID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, jobID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers(jobID) > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_DeliversOnlySubscribedJob(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := dial(t, hub, "job-1")
	ctx := context.Background()

	require.NoError(t, hub.NotifyProgress(ctx, entity.ProgressEvent{JobID: "job-2", Page: 9}))
	require.NoError(t, hub.NotifyProgress(ctx, entity.ProgressEvent{JobID: "job-1", Page: 1, Status: entity.StatusRunning}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got entity.ProgressEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 1, got.Page)
}

func TestHub_UnsubscribesOnDisconnect(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := dial(t, hub, "job-1")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers("job-1") == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, hub.NotifyProgress(context.Background(), entity.ProgressEvent{JobID: "job-1"}))
}

func TestHub_CloseSendsCloseFrame(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := dial(t, hub, "job-1")

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
