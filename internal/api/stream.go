package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tokenwatch/internal/model"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans analysis results out to websocket clients. It can be fed
// directly (PublishAnalysis) or from a Redis channel (RunRedis).
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string][]byte
	log     *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
		log:     log,
	}
}

// PublishAnalysis broadcasts res to all clients.
func (h *Hub) PublishAnalysis(_ context.Context, res *model.AnalysisResult) error {
	data, err := sonic.Marshal(res)
	if err != nil {
		return err
	}
	h.Broadcast(res.Contract, data)
	return nil
}

// Broadcast sends data to every client and remembers it as the latest
// message for contract. Slow clients drop messages.
func (h *Hub) Broadcast(contract string, data []byte) {
	h.mu.Lock()
	h.latest[contract] = data
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Debug("stream client slow, dropping message")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunRedis relays messages from a Redis PubSub channel until ctx is done.
func (h *Hub) RunRedis(ctx context.Context, rdb *goredis.Client, channel string) {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()
	h.log.Info("stream subscribed", zap.String("channel", channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var res model.AnalysisResult
			if err := sonic.UnmarshalString(msg.Payload, &res); err != nil {
				h.log.Warn("bad stream payload", zap.Error(err))
				continue
			}
			h.Broadcast(res.Contract, []byte(msg.Payload))
		}
	}
}

// ServeWS upgrades the request and registers the client. New clients first
// receive the latest result of every contract.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64), hub: h}

	h.mu.Lock()
	for _, data := range h.latest {
		select {
		case c.send <- data:
		default:
		}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("stream client connected", zap.Int("clients", count))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		c.hub.log.Debug("stream client disconnected")
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
