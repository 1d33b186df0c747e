package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"docreg/internal/registration"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = 10 * time.Second
	sendBuffer   = 32
)

// Message is the JSON frame pushed to subscribers
type Message struct {
	Kind      string `json:"kind"`
	RequestID string `json:"request_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Status    int    `json:"status"`
	At        int64  `json:"at"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed registration events out to websocket subscribers
type Hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
	wg       sync.WaitGroup
}

var _ registration.Listener = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// OnEvent broadcasts ev without blocking; subscribers that fall behind are
// disconnected
func (h *Hub) OnEvent(_ context.Context, ev registration.Event) {
	data, err := json.Marshal(Message{
		Kind:      string(ev.Kind),
		RequestID: ev.RequestID,
		Username:  ev.Username,
		Email:     ev.Email,
		Status:    int(ev.Status),
		At:        ev.At.UnixMilli(),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.send <- data:
		default:
			h.logger.Warn("dropping slow event subscriber", "remote", s.conn.RemoteAddr().String())
			h.removeLocked(s)
		}
	}
}

// SubscriberCount returns the number of connected subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the connection and streams events until the peer
// disconnects or the hub is closed
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}
	h.subs[s] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Debug("event subscriber connected", "remote", conn.RemoteAddr().String())

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop drains control frames so pongs are processed
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(s)
		h.mu.Unlock()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("event subscriber read", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	defer h.wg.Done()
	defer s.conn.Close()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("event write failed", "error", err)
				return
			}

		case <-pingTicker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked must be called with h.mu held
func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
}

// Close disconnects every subscriber and waits for their writers to exit
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for s := range h.subs {
		h.removeLocked(s)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
