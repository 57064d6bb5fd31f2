// Package gateway pushes live terminal activity to browser clients over
// WebSocket. Every broadcast carries a global seq; a client reconnecting
// with ?last_seq=N first receives what it missed from the replay buffer.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
)

// Message kinds broadcast to clients.
const (
	KindCandle   = "candle"
	KindTick     = "tick"
	KindTrade    = "trade"
	KindPlayback = "playback"
	KindReset    = "reset"
)

// liveQueue is the per-client queue space reserved for live broadcasts.
const liveQueue = 256

// Envelope is the wire shape of every broadcast.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
	TS   time.Time       `json:"ts"`
	Seq  int64           `json:"seq"`
}

// Hub tracks connected clients and fans out broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	seq     int64
	replay  *ReplayBuffer

	upgrader websocket.Upgrader
	log      *slog.Logger

	// OnDrop, if set, is called when a slow client misses a message.
	OnDrop func()
}

// NewHub creates a hub keeping the last replaySize envelopes for backfill.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.Component(log, "gateway"),
	}
}

// Broadcast sends payload to every client. It never blocks: a client whose
// queue is full misses the message and can backfill on reconnect.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal broadcast", slog.String("kind", kind), slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.seq++
	env, _ := json.Marshal(Envelope{Kind: kind, Data: data, TS: time.Now().UTC(), Seq: h.seq})
	h.replay.Push(h.seq, env)
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last broadcast.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var lastSeq int64 = -1
	if v := r.URL.Query().Get("last_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid last_seq", http.StatusBadRequest)
			return
		}
		lastSeq = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	// The queue holds a full backfill plus live headroom.
	c := &Client{hub: h, conn: conn, send: make(chan []byte, h.replay.Cap()+liveQueue)}

	// Registration and backfill happen under one lock so no broadcast is
	// lost or duplicated in between.
	h.mu.Lock()
	if lastSeq >= 0 {
		for _, env := range h.replay.Since(lastSeq) {
			select {
			case c.send <- env:
			default:
				if h.OnDrop != nil {
					h.OnDrop()
				}
			}
		}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("client connected", slog.Int("clients", count), slog.Int64("last_seq", lastSeq))
	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client disconnected", slog.Int("clients", count))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
