// Package hub terminates persistent client connections for the /hub/match
// endpoint. Unlike the global broadcast-to-everyone model in the original
// source, clients join a stream-named group on SubscribeToStream and
// server-initiated broadcasts target only that group, per the redesign
// flag in the design notes.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// registration carries a client's (de)registration along with the stream
// group it is joining or leaving, so the Hub's single run loop stays the
// only writer to its maps.
type registration struct {
	client   *Client
	streamID string
}

// Hub maintains the set of active connections, grouped by stream, and
// serialises all membership changes and broadcasts through one run loop.
type Hub struct {
	clients map[*Client]struct{}
	groups  map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan registration
	broadcast  chan broadcastMsg

	mu sync.RWMutex // guards reads used only by tests/metrics

	running atomic.Bool
}

type broadcastMsg struct {
	streamID string // empty means "all groups" (e.g. client-to-client metrics)
	msg      Message
	exclude  *Client
}

func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan registration),
		broadcast:  make(chan broadcastMsg, 256),
	}
}

// Run drives the hub's single-goroutine event loop until ctx is cancelled.
// On cancellation every registered client's send channel is closed so
// their writePump goroutines unwind, then Run returns.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]struct{})
			h.groups = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			for streamID, members := range h.groups {
				if _, ok := members[c]; ok {
					delete(members, c)
					if len(members) == 0 {
						delete(h.groups, streamID)
					}
				}
			}
			h.mu.Unlock()
			close(c.send)

		case r := <-h.join:
			h.mu.Lock()
			members, ok := h.groups[r.streamID]
			if !ok {
				members = make(map[*Client]struct{})
				h.groups[r.streamID] = members
			}
			members[r.client] = struct{}{}
			h.mu.Unlock()

		case b := <-h.broadcast:
			h.deliver(b)
		}
	}
}

func (h *Hub) deliver(b broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*Client]struct{}
	if b.streamID == "" {
		targets = h.clients
	} else {
		targets = h.groups[b.streamID]
	}
	for c := range targets {
		if c == b.exclude {
			continue
		}
		select {
		case c.send <- b.msg:
		default:
			slog.Warn("hub: dropping message, client send buffer full", "streamId", b.streamID)
		}
	}
}

// Alive reports whether Run's event loop is currently active.
func (h *Hub) Alive() error {
	if !h.running.Load() {
		return fmt.Errorf("hub: run loop not active")
	}
	return nil
}

// Register adds a newly-connected client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// JoinStream places c into streamID's broadcast group.
func (h *Hub) JoinStream(c *Client, streamID string) {
	h.join <- registration{client: c, streamID: streamID}
}

// Broadcast sends msg to every client subscribed to streamID.
func (h *Hub) Broadcast(streamID string, msg Message) {
	h.broadcast <- broadcastMsg{streamID: streamID, msg: msg}
}

// BroadcastOthers sends msg to every client subscribed to streamID except
// exclude, used by SendMetrics which must not echo back to the sender.
func (h *Hub) BroadcastOthers(streamID string, msg Message, exclude *Client) {
	h.broadcast <- broadcastMsg{streamID: streamID, msg: msg, exclude: exclude}
}
