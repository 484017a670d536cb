package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub streams progress events to websocket subscribers of a job. Slow
// subscribers miss events rather than holding up the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		logger:      logger,
	}
}

// NotifyProgress implements repository.ProgressNotifier.
func (h *Hub) NotifyProgress(_ context.Context, event entity.ProgressEvent) error {
	h.mu.RLock()
	subs := h.subscribers[event.JobID]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.mu.RUnlock()
		return err
	}
	for sub := range subs {
		select {
		case sub.send <- payload:
		default:
		}
	}
	h.mu.RUnlock()
	return nil
}

// Subscribers returns the number of open connections for a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[jobID])
}

// Serve upgrades the request and streams jobID's events until the client
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.subscribe(jobID, sub)

	go h.writePump(sub)

	// Keep the connection open until the client goes away.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.unsubscribe(jobID, sub)
	_ = conn.Close()
}

func (h *Hub) writePump(sub *subscriber) {
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = sub.conn.Close()
			// Drain so publishers never see a full buffer on a dead conn.
			for range sub.send {
			}
			return
		}
	}
	_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) subscribe(jobID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[jobID] == nil {
		h.subscribers[jobID] = make(map[*subscriber]struct{})
	}
	h.subscribers[jobID][sub] = struct{}{}
}

func (h *Hub) unsubscribe(jobID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[jobID]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			sub.close()
		}
		if len(subs) == 0 {
			delete(h.subscribers, jobID)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, subs := range h.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(h.subscribers, jobID)
	}
}
