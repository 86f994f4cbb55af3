package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/meddesk/internal/api"
	"github.com/ashureev/meddesk/internal/identity"
	"github.com/ashureev/meddesk/internal/observability"
	"github.com/go-chi/chi/v5"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

const errMessageRequired = "message is required"

// Request is the body of POST /chat and of each WebSocket frame.
type Request struct {
	Message *string `json:"message"`
}

// Response carries the bot reply.
type Response struct {
	Response string `json:"response"`
}

// Handler serves the chat endpoints.
type Handler struct {
	svc         *Service
	limiter     *RateLimiter
	maxBodySize int64
}

// NewHandler creates a chat handler. maxBodySize <= 0 selects the default.
func NewHandler(svc *Service, limiter *RateLimiter, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxRequestBodySize
	}
	return &Handler{svc: svc, limiter: limiter, maxBodySize: maxBodySize}
}

// RegisterRoutes registers POST /chat.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

// parseMessage validates a request payload. A missing, non-string or empty
// message is rejected before reaching the engine; whitespace is content.
func parseMessage(data []byte) (string, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return "", errors.New("invalid request body")
	}
	if req.Message == nil || *req.Message == "" {
		return "", errors.New(errMessageRequired)
	}
	return *req.Message, nil
}

// HandleChat answers one message: JSON {message} in, JSON {response} out.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		api.Error(w, http.StatusUnauthorized, "no session")
		return
	}

	// Keyed by IP so rotating the session cookie does not reset the budget.
	if h.limiter != nil && !h.limiter.Allow(identity.IPFromRequest(r)) {
		observability.RateLimitRejectedTotal.WithLabelValues("http").Inc()
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := parseMessage(raw)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.svc.Respond(r.Context(), sessionID, message)
	if err != nil {
		slog.Error("Chat reply failed", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to generate reply")
		return
	}

	api.JSON(w, http.StatusOK, Response{Response: reply.Text})
}
