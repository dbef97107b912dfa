package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound client frames.
	maxMessageSize = 4096
)

// SameOriginCheck validates that the WebSocket request's Origin matches the
// request host. Requests without an Origin header (same-origin fetches,
// curl) are allowed.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	// Compare the host portion (includes port if present)
	return originURL.Host == host
}

// Handler upgrades HTTP requests to WebSocket connections on a Hub.
type Handler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	clientWrites bool
	logger       *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithClientWrites lets clients push set frames back into the store.
// Off by default: the stream is read-only.
func WithClientWrites() HandlerOption {
	return func(h *Handler) {
		h.clientWrites = true
	}
}

// WithCheckOrigin replaces the origin check. The default enforces
// same-origin to prevent cross-site WebSocket hijacking.
func WithCheckOrigin(fn func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHandler creates a WebSocket handler for the hub.
func NewHandler(hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     SameOriginCheck,
		},
		logger: slog.Default().With("component", "live"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the hub's WebSocket endpoint on a chi router.
func Mount(r chi.Router, path string, hub *Hub, opts ...HandlerOption) {
	r.Get(path, NewHandler(hub, opts...).ServeHTTP)
}

// ServeHTTP upgrades the connection and serves it until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	cn, err := h.hub.register(id)
	if err != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	logger := h.logger.With("conn_id", id)
	logger.Debug("client connected", "remote", r.RemoteAddr)

	go h.writePump(ws, cn, logger)
	h.readPump(ws, cn, logger)
}

// readPump consumes inbound frames until the connection dies. It owns the
// connection's hub registration: when it returns, the client is gone.
func (h *Handler) readPump(ws *websocket.Conn, cn *conn, logger *slog.Logger) {
	defer func() {
		h.hub.unregister(cn.id)
		ws.Close()
		logger.Debug("client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				logger.Error("read error", "error", err)
			}
			return
		}

		if !h.clientWrites {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			logger.Warn("malformed client frame", "error", err)
			continue
		}
		if frame.Type != FrameSet {
			logger.Warn("unexpected client frame type", "type", frame.Type)
			continue
		}
		if err := h.hub.applyClientWrite(frame.Key, frame.Value); err != nil {
			logger.Warn("client write rejected", "key", frame.Key, "error", err)
		}
	}
}

// writePump drains the connection's send channel onto the socket and keeps
// the connection alive with pings. A closed send channel (unregistered or
// hub shutdown) ends the pump with a normal close frame.
func (h *Handler) writePump(ws *websocket.Conn, cn *conn, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data, ok := <-cn.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("write error", "error", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
