package speech

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/session"
)

const maxFrameBytes = 16 << 20

// TurnRunner runs one request/reply turn for a session.
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID string, hist *conversation.History, frame []byte) *pipeline.Result
}

// WebSocketOptions tunes keepalive and buffering of session connections.
type WebSocketOptions struct {
	PingInterval time.Duration
	ReadDeadline time.Duration
	WriteTimeout time.Duration
	// QueueSize bounds frames read ahead of the turn in flight.
	QueueSize int
}

func (o *WebSocketOptions) withDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}
	if o.ReadDeadline <= 0 {
		o.ReadDeadline = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 8
	}
}

// WebSocketHandler serves one conversation session per websocket connection.
type WebSocketHandler struct {
	runner   TurnRunner
	sessions *session.Registry
	opts     WebSocketOptions
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWebSocketHandler builds the /ws handler. A nil log discards output.
func NewWebSocketHandler(runner TurnRunner, sessions *session.Registry, opts WebSocketOptions, log *zap.Logger) *WebSocketHandler {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		runner:   runner,
		sessions: sessions,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log.Named("websocket"),
	}
}

// RegisterWebSocketRoutes mounts the session endpoint at /ws.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// handleWebSocket owns the connection for its whole life: a reader goroutine
// queues frames and this goroutine runs turns one at a time, in arrival order.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	sess := h.sessions.Create(context.WithoutCancel(r.Context()), conn)
	log := h.log.With(zap.String("session_id", sess.ID))
	defer func() {
		sess.Close()
		h.sessions.Remove(sess.ID)
		log.Info("connection closed")
	}()

	log.Info("new connection", zap.String("remote", r.RemoteAddr))

	conn.SetReadLimit(maxFrameBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.ReadDeadline))
	})

	go h.pingLoop(sess.Context(), conn)

	frames := make(chan []byte, h.opts.QueueSize)
	go h.readLoop(sess, conn, frames, log)

	for frame := range frames {
		if sess.Context().Err() != nil {
			return
		}
		h.serveTurn(sess, conn, frame, log)
	}
}

// readLoop forwards text and binary frames until the connection fails, then
// starts closing the session.
func (h *WebSocketHandler) readLoop(sess *session.Session, conn *websocket.Conn, frames chan<- []byte, log *zap.Logger) {
	defer close(frames)
	defer sess.BeginClose()

	ctx := sess.Context()
	for {
		// Armed per read: the send below can block on a full queue for a whole turn.
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && ctx.Err() == nil {
				log.Warn("read error", zap.Error(err))
			} else {
				log.Debug("read ended", zap.Error(err))
			}
			return
		}

		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHandler) serveTurn(sess *session.Session, conn *websocket.Conn, frame []byte, log *zap.Logger) {
	ctx := sess.Context()

	res := h.runner.RunTurn(ctx, sess.ID, sess.History(), frame)
	if !res.Sendable() {
		return
	}

	err := sess.Deliver(func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, res.Payload)
	})
	if err != nil {
		res.Abort(ctx)
		if !errors.Is(err, session.ErrClosed) {
			log.Warn("write reply failed", zap.Error(err))
			sess.BeginClose()
		}
		return
	}

	sess.Commit(res.History)
	if err := res.Delivered(ctx); err != nil {
		log.Error("turn bookkeeping failed", zap.Error(err))
	}
}

// pingLoop pings the client every PingInterval until the session ends.
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
