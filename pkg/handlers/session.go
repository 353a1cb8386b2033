package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/conversation"
)

// SessionMessage is one stored conversation turn as returned by the history
// endpoint.
type SessionMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionHistoryResponse wraps a session's stored turns.
type SessionHistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []SessionMessage `json:"messages"`
}

// SessionHandler manages conversation sessions over HTTP.
type SessionHandler struct {
	store  *conversation.Store
	logger *zap.Logger
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(store *conversation.Store, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers the session handler's routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/sessions/{sid}/history", h.History)
	mux.HandleFunc("DELETE /api/v1/admin/sessions/{sid}", h.Clear)
}

// History handles GET /api/v1/admin/sessions/{sid}/history. Message
// metadata (generated SQL) stays server-side; only role, content, and
// timestamp are returned.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")

	messages := h.store.History(sessionID, 0)
	out := SessionHistoryResponse{
		SessionID: sessionID,
		Messages:  make([]SessionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, SessionMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	if err := WriteJSON(w, http.StatusOK, out); err != nil {
		h.logger.Error("failed to write session history", zap.Error(err))
	}
}

// Clear handles DELETE /api/v1/admin/sessions/{sid}.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	h.store.Clear(sessionID)

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sessionID,
	}); err != nil {
		h.logger.Error("failed to write session clear response", zap.Error(err))
	}
}
