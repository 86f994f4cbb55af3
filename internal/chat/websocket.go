package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/meddesk/internal/identity"
	"github.com/ashureev/meddesk/internal/observability"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketHandler serves the chat over a WebSocket. Each text frame carries
// {"message": ...} and is answered with {"response": ...} or {"error": ...}.
type WebSocketHandler struct {
	svc           *Service
	limiter       *RateLimiter
	allowedOrigin string
	isDev         bool
	maxFrameSize  int64
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(svc *Service, limiter *RateLimiter, allowedOrigin string, isDev bool, maxFrameSize int64) *WebSocketHandler {
	if maxFrameSize <= 0 {
		maxFrameSize = defaultMaxRequestBodySize
	}
	return &WebSocketHandler{
		svc:           svc,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		maxFrameSize:  maxFrameSize,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	ip := identity.IPFromRequest(r)
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", ip)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()
	ws.SetReadLimit(h.maxFrameSize)

	observability.WebSocketConnections.Inc()
	defer observability.WebSocketConnections.Dec()

	h.readLoop(r.Context(), ws, sessionID, ip)
	slog.Info("Chat WebSocket ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID, ip string) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}
		if typ != websocket.MessageText {
			if err := h.writeJSON(ctx, ws, map[string]string{"error": "text frames only"}); err != nil {
				return
			}
			continue
		}

		if h.limiter != nil && !h.limiter.Allow(ip) {
			observability.RateLimitRejectedTotal.WithLabelValues("websocket").Inc()
			if err := h.writeJSON(ctx, ws, map[string]string{"error": "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		message, err := parseMessage(data)
		if err != nil {
			if err := h.writeJSON(ctx, ws, map[string]string{"error": err.Error()}); err != nil {
				return
			}
			continue
		}

		reply, err := h.svc.Respond(ctx, sessionID, message)
		if err != nil {
			slog.Error("Chat reply failed", "session_id", sessionID, "error", err)
			if err := h.writeJSON(ctx, ws, map[string]string{"error": "failed to generate reply"}); err != nil {
				return
			}
			continue
		}

		if err := h.writeJSON(ctx, ws, Response{Response: reply.Text}); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
