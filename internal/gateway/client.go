package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// symbol filter; empty means every symbol
	subMu   sync.RWMutex
	symbols map[string]bool
}

// controlMsg is a client → server message.
//
//	{"type":"SUBSCRIBE","symbols":["005930"]}
//	{"type":"UNSUBSCRIBE","symbols":["005930"]}
//	{"ping":1712345678901}
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBufferCap),
		hub:     h,
		symbols: make(map[string]bool, len(symbols)),
	}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

// queueInitialStateLocked queues the latest payload of every matching
// channel newer than since. The hub lock must be held.
func (c *Client) queueInitialStateLocked(since time.Time) {
	for channel, entry := range c.hub.latest {
		if !since.IsZero() && !entry.TS.After(since) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		env := buildEnvelope(channel, entry.Data, entry.TS, c.hub.seq, entry.Seq, true)
		select {
		case c.send <- env:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// coalesce queued envelopes into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		c.hub.log.Info().Msg("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
	c.subMu.Unlock()
	c.hub.log.Debug().Strs("symbols", symbols).Msg("client subscribed")
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	c.subMu.Unlock()
}

// matchesChannel reports whether the client should receive channel.
// Order and result channels are always delivered; snapshot channels only
// for subscribed symbols, or for all when the client has no filter.
func (c *Client) matchesChannel(channel string) bool {
	sym, ok := strings.CutPrefix(channel, snapshotPrefix)
	if !ok {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[sym]
}
