// Package ws serves the downstream WebSocket endpoint. Each connection gets
// a reader that feeds commands to the hub and a writer that drains the
// client's outbound queue.
package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okian/tablewire/internal/adapters/mq/queue"
	"github.com/okian/tablewire/pkg/logger"
)

const (
	defaultReadLimit  = 4096
	defaultPongWait   = 60 * time.Second
	defaultWriteWait  = 10 * time.Second
	handshakeDeadline = 10 * time.Second
)

// Hub is the part of the gateway a socket talks to.
type Hub interface {
	Connect(ctx context.Context, clientID string) (queue.Queue, error)
	HandleCommand(ctx context.Context, clientID string, raw []byte)
	Disconnect(ctx context.Context, clientID string)
}

// Handler upgrades /ws requests and runs one session per connection.
type Handler struct {
	hub       Hub
	upgrader  websocket.Upgrader
	origins   []string
	readLimit int64
	pongWait  time.Duration
	writeWait time.Duration
	log       logger.Logger
	newID     func() string
}

// Option configures a Handler.
type Option func(*Handler)

// WithAllowedOrigins restricts the Origin header. Empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithReadLimit caps the size of one client frame.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithKeepalive sets how long to wait for a pong. Pings go out at 9/10 of it.
func WithKeepalive(pongWait time.Duration) Option {
	return func(h *Handler) {
		if pongWait > 0 {
			h.pongWait = pongWait
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler creates a WebSocket handler over hub.
func NewHandler(hub Hub, opts ...Option) *Handler {
	h := &Handler{
		hub:       hub,
		readLimit: defaultReadLimit,
		pongWait:  defaultPongWait,
		writeWait: defaultWriteWait,
		log:       logger.Nop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: handshakeDeadline,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// Register attaches GET /ws to mux.
func (h *Handler) Register(_ context.Context, mux *http.ServeMux) {
	mux.Handle("GET /ws", h)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(h.origins, func(allowed string) bool {
		allowed = strings.TrimRight(allowed, "/")
		return allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host)
	})
}

// ServeHTTP upgrades the request and blocks until the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	// The session outlives the request context once hijacked.
	ctx := context.WithoutCancel(r.Context())
	id := h.newID()
	log := h.log.With(logger.String("client", id))

	q, err := h.hub.Connect(ctx, id)
	if err != nil {
		log.Warn(ctx, "client rejected", logger.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "rejected"),
			time.Now().Add(h.writeWait))
		_ = conn.Close()
		return
	}
	log.Info(ctx, "client connected", logger.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, q, log)
	}()

	h.readLoop(ctx, conn, id, log)
	h.hub.Disconnect(ctx, id)
	<-done
	_ = conn.Close()
	log.Info(ctx, "client disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, id string, log logger.Logger) {
	conn.SetReadLimit(h.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				log.Debug(ctx, "client read ended", logger.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
		h.hub.HandleCommand(ctx, id, data)
	}
}

// writeLoop is the only writer on conn. It ends when the queue closes or a
// write fails; a failed write closes the socket so the reader stops too.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, q queue.Queue, log logger.Logger) {
	ping := time.NewTicker(h.pongWait * 9 / 10)
	defer ping.Stop()
	for {
		select {
		case frame, ok := <-q.Dequeue():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug(ctx, "client write failed", logger.Error(err))
				_ = conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
