package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiliankoe/pokerdash/internal/hub"
	"github.com/kiliankoe/pokerdash/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 64 << 10
	sendBuffer = 64
)

var (
	errClosed       = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// checkOrigin accepts requests without an Origin header, same-host
// requests, and origins on the allow list. An empty list or "*" allows all.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Client is one raw WebSocket connection scoped to a room.
type Client struct {
	id   string
	room string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *Client) ID() string   { return c.id }
func (c *Client) Room() string { return c.room }

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close stops the write pump, which closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// ServeWS upgrades GET /ws/:roomId and runs the connection until it drops.
func (srv *Server) ServeWS(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room id"})
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin(srv.AllowedOrigins)}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("room", roomID).Str("origin", c.Request.Header.Get("Origin")).Err(err).Msg("websocket upgrade")
		return
	}
	client := &Client{id: uuid.NewString(), room: roomID, conn: conn, send: make(chan []byte, sendBuffer)}
	srv.Hub.Register(client)
	metrics.Connections.WithLabelValues("websocket").Inc()
	srv.Rooms.Connect(roomID, client.id)

	go client.writePump()
	srv.readPump(client)
}

func (srv *Server) readPump(c *Client) {
	defer func() {
		srv.Hub.Unregister(c)
		metrics.Connections.WithLabelValues("websocket").Dec()
		if srv.limiter != nil {
			srv.limiter.Forget(c.id)
		}
		_ = c.Close()
		_ = srv.Rooms.Disconnect(context.Background(), c.room, c.id)
	}()
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("room", c.room).Str("conn", c.id).Err(err).Msg("websocket read")
			}
			return
		}
		if srv.limiter != nil && !srv.limiter.Allow(c.id) {
			metrics.DroppedMessages.Inc()
			log.Warn().Str("room", c.room).Str("conn", c.id).Msg("rate limited")
			continue
		}
		_ = srv.Rooms.Handle(context.Background(), c.room, c.id, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ hub.Conn = (*Client)(nil)
var _ hub.Conn = (*socketConn)(nil)
