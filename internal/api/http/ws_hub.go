package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	domainports "videostream/internal/domain/ports"
	"videostream/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
	wsSendBuffer = 64
)

// wsClient relays one broker subscription to one connection. Replies to
// inbound messages share the connection through send.
type wsClient struct {
	hub    *wsHub
	conn   *websocket.Conn
	send   chan []byte
	sub    domainports.Subscription
	handle func(ctx context.Context, c *wsClient, data []byte)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// wsHub tracks live connections so shutdown can close them all.
type wsHub struct {
	clients    map[*wsClient]bool
	count      atomic.Int64
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				client.stop()
				delete(h.clients, client)
				metrics.WSConnections.Dec()
			}
			h.count.Store(0)
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Inc()
			h.logger.Debug("ws client connected", slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
				metrics.WSConnections.Dec()
				client.stop()
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		}
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *wsHub) clientCount() int {
	return int(h.count.Load())
}

func (h *wsHub) join(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *wsHub) leave(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.stop()
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) stop() {
	c.once.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// reply queues a message for this connection only. It drops the message
// when the client is not keeping up.
func (c *wsClient) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		if c.sub != nil {
			_ = c.sub.Close()
		}
		c.conn.Close()
	}()

	var events <-chan []byte
	if c.sub != nil {
		events = c.sub.Messages()
	}
	for {
		select {
		case <-c.hub.done:
			c.goingAway()
			return
		case <-c.done:
			select {
			case <-c.hub.done:
				c.goingAway()
			default:
			}
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case msg, ok := <-events:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) goingAway() {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(2*time.Second),
	)
}

func (c *wsClient) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if c.handle != nil {
			c.handle(c.ctx, c, data)
		}
	}
}
