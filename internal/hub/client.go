package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ReadModels is the subset of the read-model service the hub needs to
// prime a freshly subscribed client.
type ReadModels interface {
	GetMatchStateJSON(ctx context.Context, streamID string) (json.RawMessage, bool, error)
	GetMomentumJSON(ctx context.Context, streamID string) (json.RawMessage, bool, error)
	GetLeaderboardJSON(ctx context.Context) (json.RawMessage, error)
}

// Client is the per-connection middleman between the websocket and the
// hub's run loop.
type Client struct {
	hub        *Hub
	reads      ReadModels
	conn       *websocket.Conn
	send       chan Message
	streamID   string // "" until the client subscribes
}

func ServeWs(h *Hub, rm ReadModels, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("hub: websocket upgrade failed", "error", err)
		return
	}
	c := &Client{hub: h, reads: rm, conn: conn, send: make(chan Message, 256)}
	h.Register(c)

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("hub: connection closed unexpectedly", "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("hub: malformed frame", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case TypeSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("hub: malformed subscribe payload", "error", err)
			return
		}
		c.subscribeToStream(p.StreamID)

	case TypeMetrics:
		var p MetricsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("hub: malformed metrics payload", "error", err)
			return
		}
		c.hub.BroadcastOthers("", newMessage(TypeMetrics, p), c)

	default:
		slog.Debug("hub: unhandled frame type", "type", msg.Type)
	}
}

// subscribeToStream joins streamID's broadcast group and primes the
// client with the current read-model state, matching the subscribe-time
// priming the original hub performs before any live updates arrive.
func (c *Client) subscribeToStream(streamID string) {
	if streamID == "" {
		slog.Warn("hub: subscribe with empty streamId")
		return
	}
	c.streamID = streamID
	c.hub.JoinStream(c, streamID)
	c.send <- newMessage(TypeSubscribeAck, SubscribePayload{StreamID: streamID})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if state, ok, err := c.reads.GetMatchStateJSON(ctx, streamID); err == nil && ok {
		c.send <- Message{Type: TypeMatchState, Payload: state}
	}
	if momentum, ok, err := c.reads.GetMomentumJSON(ctx, streamID); err == nil && ok {
		c.send <- Message{Type: TypeTesHistory, Payload: momentum}
	}
	if lb, err := c.reads.GetLeaderboardJSON(ctx); err == nil {
		c.send <- Message{Type: TypeLeaderboard, Payload: lb}
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
			if err := c.conn.WriteJSON(msg); err != nil {
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
