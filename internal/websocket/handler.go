// Package websocket is the transport for room events: it upgrades HTTP
// requests, decodes inbound frames into typed events and reports connection
// lifecycle to the event router.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"classroom/internal/metrics"
	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

// Config holds transport timings and limits.
type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration // read deadline, extended by every pong
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string // empty allows any origin
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     100,
		MaxMessageSize: 16 * 1024,
	}
}

// inboundFrame keeps data raw until the event name is known.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler upgrades requests on the room socket endpoint.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader
	router   interfaces.EventRouter
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[string]*Connection
	wg    sync.WaitGroup
}

// NewHandler creates a handler that feeds router.
func NewHandler(cfg Config, router interfaces.EventRouter, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	h := &Handler{
		cfg:     cfg,
		router:  router,
		metrics: m,
		logger:  logger.With().Str("module", "websocket").Logger(),
		conns:   make(map[string]*Connection),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// HandleWebSocket upgrades the request. Identity is not part of the
// handshake; a connection acts for whoever it joins as.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, h.cfg)
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.mu.Unlock()

	h.router.Connect(conn)
	h.metrics.ConnectionOpened()
	h.logger.Debug().Str("conn", conn.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")

	h.wg.Add(1)
	go h.readPump(conn)
}

// Shutdown closes every open connection and waits for their read pumps to
// report the disconnects, or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for _, c := range h.conns {
		_ = c.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of open connections.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.router.Disconnect(conn.ID())
		_ = conn.Close()

		h.mu.Lock()
		delete(h.conns, conn.ID())
		h.mu.Unlock()

		h.metrics.ConnectionClosed()
		h.logger.Debug().Str("conn", conn.ID()).Msg("connection closed")
		h.wg.Done()
	}()

	ws := conn.conn
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, ok := h.decode(conn.ID(), data)
		if !ok {
			continue
		}
		h.router.Dispatch(conn.ctx, conn.ID(), event)
	}
}

// decode drops malformed frames without telling the sender.
func (h *Handler) decode(connID string, data []byte) (types.Event, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		h.metrics.EventReceived("malformed", metrics.OutcomeInvalid)
		h.logger.Debug().Str("conn", connID).Msg("dropping malformed frame")
		return nil, false
	}

	event, err := types.DecodeEvent(frame.Event, frame.Data)
	if err != nil {
		name := frame.Event
		if errors.Is(err, types.ErrUnknownEvent) {
			name = "unknown"
		}
		h.metrics.EventReceived(name, metrics.OutcomeInvalid)
		h.logger.Debug().Err(err).Str("conn", connID).Str("event", name).Msg("dropping invalid event")
		return nil, false
	}
	return event, true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
