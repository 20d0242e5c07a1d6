package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWaitFactor = 2 // read deadline = pongWaitFactor * ping period
)

type Options struct {
	MaxMessageSize int64
	PingPeriod     time.Duration
	RatePerSecond  float64
	RateBurst      int
	AllowedOrigins []string
}

type WsServer struct {
	relay    *relay.Relay
	router   *Router
	upgrader websocket.Upgrader
	opts     Options
}

func NewWsServer(rl *relay.Relay, opts Options) *WsServer {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	origins := newOriginChecker(opts.AllowedOrigins)

	srv := &WsServer{
		relay:  rl,
		router: NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		opts: opts,
	}
	srv.registerHandlers() // ← all WS events configured here
	zap.L().Debug("ws.events", zap.Strings("events", srv.router.Events()))
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxMessageSize)

	conn := &clientConn{
		id:      uuid.NewString(),
		addr:    ginCtx.Request.RemoteAddr,
		rawConn: rawConn,
	}
	if s.opts.RatePerSecond > 0 {
		conn.limiter = rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), max(s.opts.RateBurst, 1))
	}

	// ─────────────────── Client connected ────────────────────────
	mb := s.relay.Connect(conn.id)
	zap.L().Info("ws.connected", zap.String("conn", conn.id), zap.String("addr", conn.addr))

	go conn.writePump(mb, s.opts.PingPeriod)
	go s.reader(conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 register_user ---------------------------------------------------------
	Register(s.router, EventRegisterUser,
		func(_ context.Context, cc *ConnContext, req RegisterUserRequest) error {
			s.relay.Register(cc.ConnID, req.Username)
			return nil
		},
	)

	// 🔹 send_message_by_id ----------------------------------------------------
	Register(s.router, EventSendMessageByID,
		func(_ context.Context, cc *ConnContext, req DirectMessageRequest) error {
			s.relay.SendDirect(cc.ConnID, req.Receiver, req.Message, req.Sender)
			return nil
		},
	)

	// 🔹 send_broadcast_message ------------------------------------------------
	Register(s.router, EventSendBroadcastMessage,
		func(_ context.Context, cc *ConnContext, req BroadcastMessageRequest) error {
			s.relay.SendBroadcast(cc.ConnID, req.Message, req.Sender)
			return nil
		},
	)

	// 🔹 create_and_chat_in_room -----------------------------------------------
	Register(s.router, EventCreateAndChatInRoom,
		func(_ context.Context, cc *ConnContext, req RoomMessageRequest) error {
			s.relay.ChatInRoom(cc.ConnID, req.RoomName, req.Message, req.Sender)
			return nil
		},
	)

	// 🔹 typing ----------------------------------------------------------------
	Register(s.router, EventTyping,
		func(_ context.Context, cc *ConnContext, req TypingRequest) error {
			s.relay.Typing(cc.ConnID, req.Receiver, req.IsTyping)
			return nil
		},
	)
}

// reader handles one connection's frames strictly in arrival order. When the
// socket goes away the connection is disconnected from the relay, which
// closes its mailbox and stops the writer.
func (s *WsServer) reader(conn *clientConn) {
	defer func() {
		s.relay.Disconnect(conn.id)
		zap.L().Info("ws.disconnected", zap.String("conn", conn.id))
	}()

	pongWait := pongWaitFactor * s.opts.PingPeriod
	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// handlers see a context that ends with the connection
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cc := &ConnContext{ConnID: conn.id, RemoteAddr: conn.addr}

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			logReadError(conn.id, err)
			return // client closed or errored
		}

		if !conn.allow() {
			zap.L().Warn("ws.rate_limited", zap.String("conn", conn.id))
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.replyError(conn.id, err)
			continue
		}

		err = s.router.dispatch(connCtx, cc, env)

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			zap.L().Debug("ws.dispatch", zap.String("conn", conn.id), zap.String("event", env.Event), zap.Error(err))
			s.replyError(conn.id, err)
		}
	}
}

func (s *WsServer) replyError(connID string, err error) {
	s.relay.Hub().Deliver(connID, relay.Outbound{
		Event: EventError,
		Body:  ErrorBody{Error: err.Error()},
	})
}

func logReadError(connID string, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		zap.L().Warn("ws.read_limit", zap.String("conn", connID))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF):
		// regular hang-up
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		zap.L().Warn("ws.read", zap.String("conn", connID), zap.Error(err))
	default:
		zap.L().Debug("ws.read", zap.String("conn", connID), zap.Error(err))
	}
}
