package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/feedback"
)

// FeedbackRequest is the body of the feedback endpoint.
type FeedbackRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Helpful   *bool  `json:"helpful,omitempty"`
}

// FeedbackHandler accepts explicit user feedback on earlier answers.
type FeedbackHandler struct {
	store  *feedback.Store
	logger *zap.Logger
}

// NewFeedbackHandler creates the feedback handler.
func NewFeedbackHandler(store *feedback.Store, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{store: store, logger: logger}
}

// RegisterRoutes registers the feedback handler's routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/admin/feedback", h.Submit)
}

// Submit handles POST /api/v1/admin/feedback. When the store is disabled
// the submission is acknowledged and dropped.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid feedback body", zap.Error(err))
		if err := WriteJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request body.",
		}); err != nil {
			h.logger.Error("failed to write feedback error", zap.Error(err))
		}
		return
	}

	h.store.Record(feedback.Entry{
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Comment:   req.Comment,
		Helpful:   req.Helpful,
		Success:   true,
	})

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stored":  h.store.Enabled(),
	}); err != nil {
		h.logger.Error("failed to write feedback response", zap.Error(err))
	}
}
