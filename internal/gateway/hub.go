// Package gateway streams run events to websocket monitors.
//
// The Hub implements strategy.EventSink: every event is wrapped in a
// sequenced envelope, kept in a per-channel replay buffer for gap backfill,
// and fanned out to connected clients whose symbol filter matches.
//
// Channels are "snapshot:<symbol>", "orders" and "result".
package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
)

const (
	ChannelOrders = "orders"
	ChannelResult = "result"

	snapshotPrefix  = "snapshot:"
	replayBufferCap = 500
	sendBufferCap   = 256
)

// ChannelFor returns the channel an event is broadcast on.
func ChannelFor(ev *model.Event) string {
	switch ev.Kind {
	case model.EventSnapshot:
		return snapshotPrefix + ev.Symbol
	case model.EventResult:
		return ChannelResult
	default:
		return ChannelOrders
	}
}

// Hub manages websocket clients and event fan-out.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	Broadcaster *Broadcaster
	log         zerolog.Logger
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		log:         log.With().Str("component", "gateway").Logger(),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Publish broadcasts a run event.
func (h *Hub) Publish(ev model.Event) {
	h.Broadcaster.Broadcast(ChannelFor(&ev), ev.JSON())
}

// register adds a client connection and starts its pumps.
func (h *Hub) register(conn *websocket.Conn, symbols []string, since time.Time) *Client {
	c := newClient(h, conn, symbols)
	conn.EnableWriteCompression(true)

	// queue initial state under the same lock that registers the client so
	// no event is both replayed and broadcast, or missed
	h.mu.Lock()
	h.clients[c] = true
	c.queueInitialStateLocked(since)
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Strs("symbols", symbols).Msg("ws client connected")

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns the latest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
