package ws

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/pokerdash/internal/hub"
	"github.com/kiliankoe/pokerdash/internal/metrics"
	"github.com/kiliankoe/pokerdash/internal/mw"
	"github.com/kiliankoe/pokerdash/internal/poker"
	"github.com/rs/zerolog/log"
)

// MessageEvent carries the JSON envelope, as text, in both directions.
const MessageEvent = "message"

var errNoRoom = errors.New("missing room query parameter")

// Handler is what the transports need from the room core.
type Handler interface {
	Connect(roomID, connID string)
	Handle(ctx context.Context, roomID, connID string, data []byte) error
	Disconnect(ctx context.Context, roomID, connID string) error
}

var _ Handler = (*poker.RoomManager)(nil)

// socketConn adapts a Socket.IO connection to hub.Conn.
type socketConn struct {
	socketio.Conn
	room string
}

func (c *socketConn) Room() string { return c.room }

func (c *socketConn) Send(data []byte) error {
	c.Emit(MessageEvent, string(data))
	return nil
}

type Server struct {
	Hub     *hub.Hub
	Rooms   Handler
	limiter *mw.RL

	// AllowedOrigins limits browser origins on /ws/:roomId. Empty allows all.
	AllowedOrigins []string
}

func New(h *hub.Hub, rooms Handler, limiter *mw.RL) *Server {
	return &Server{Hub: h, Rooms: rooms, limiter: limiter}
}

// Mount attaches the Socket.IO server to the given Gin engine. Clients connect
// with ?room=<id> and then speak the same envelope as the raw WebSocket.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		u := s.URL()
		roomID := u.Query().Get("room")
		if roomID == "" {
			log.Warn().Str("sid", s.ID()).Msg("socket without room")
			return errNoRoom
		}
		conn := &socketConn{Conn: s, room: roomID}
		s.SetContext(conn)
		srv.Hub.Register(conn)
		metrics.Connections.WithLabelValues("socketio").Inc()
		srv.Rooms.Connect(roomID, s.ID())
		return nil
	})

	io.OnEvent("/", MessageEvent, func(s socketio.Conn, msg string) {
		conn, ok := s.Context().(*socketConn)
		if !ok {
			return
		}
		if srv.limiter != nil && !srv.limiter.Allow(s.ID()) {
			metrics.DroppedMessages.Inc()
			log.Warn().Str("room", conn.room).Str("sid", s.ID()).Msg("rate limited")
			return
		}
		_ = srv.Rooms.Handle(context.Background(), conn.room, s.ID(), []byte(msg))
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		conn, ok := s.Context().(*socketConn)
		if !ok {
			return
		}
		srv.Hub.Unregister(conn)
		metrics.Connections.WithLabelValues("socketio").Dec()
		if srv.limiter != nil {
			srv.limiter.Forget(s.ID())
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
		_ = srv.Rooms.Disconnect(context.Background(), conn.room, s.ID())
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}
