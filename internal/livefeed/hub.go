// Package livefeed pushes RSI emissions to WebSocket clients.
//
// The hub pattern-subscribes to the Pub/Sub mirror of the outbound stream
// ("pub:<stream>:*") and fans each message out to every client whose token
// filter matches. It is a read-only view: nothing a client sends affects the
// pipeline.
//
// Envelope sent to clients:
//
//	{"token":"<token_address>","data":<emission JSON>,"ts":"<RFC3339Nano>","seq":N}
package livefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type latestEntry struct {
	Envelope []byte
	TS       time.Time
}

// Hub manages WebSocket clients and the Redis Pub/Sub fan-out.
type Hub struct {
	rdb    *goredis.Client
	prefix string // "pub:<stream>:"
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // by token
	seq     int64

	ready     chan struct{}
	readyOnce sync.Once

	// OnClientCount is called with the new count on connect and disconnect.
	OnClientCount func(n int)
}

// NewHub creates a hub for the Pub/Sub mirror of stream.
func NewHub(rdb *goredis.Client, stream string, log *slog.Logger) *Hub {
	return &Hub{
		rdb:     rdb,
		prefix:  "pub:" + stream + ":",
		log:     log.With(slog.String("component", "livefeed")),
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the Pub/Sub subscription is confirmed.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run subscribes to the emission channels and routes messages.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pattern := h.prefix + "*"
	pubsub := h.rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			h.log.Error("psubscribe failed", "pattern", pattern, "error", err)
		}
		return
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.log.Info("subscribed", "pattern", pattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeClients()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(strings.TrimPrefix(msg.Channel, h.prefix), []byte(msg.Payload))
		}
	}
}

// broadcast wraps data in an envelope and sends it to matching clients.
// Slow clients whose send buffer is full miss the message.
func (h *Hub) broadcast(token string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	// Hand-built envelope; data is already JSON.
	buf := make([]byte, 0, len(token)+len(data)+96)
	quoted, _ := json.Marshal(token)
	buf = append(buf, `{"token":`...)
	buf = append(buf, quoted...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	h.mu.Lock()
	h.latest[token] = latestEntry{Envelope: buf, TS: now}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(token) {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket. The optional "tokens" query
// parameter is a comma-separated filter; without it every token is sent.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, parseTokens(r.URL.Query().Get("tokens")))

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	// Initial state: the latest emission per matching token.
	for token, e := range h.latest {
		if c.wants(token) {
			select {
			case c.send <- e.Envelope:
			default:
			}
		}
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", n)
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}

	go c.writePump()
	go c.readPump()
}

// removeClient unregisters c and closes its send channel. Idempotent.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", n)
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

func (h *Hub) closeClients() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.removeClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parseTokens(s string) map[string]bool {
	if s == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
