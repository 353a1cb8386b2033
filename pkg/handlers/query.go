package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/middleware"
	"github.com/carelens/carelens-engine/pkg/pipeline"
)

// QueryRequest is the body of the query endpoint.
type QueryRequest struct {
	Query       string `json:"query"`
	SessionID   string `json:"session_id,omitempty"`
	RefineQuery bool   `json:"refine_query,omitempty"`
	BranchID    string `json:"branch_id,omitempty"`
}

// QueryHandler serves the primary question endpoint.
type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	logger       *zap.Logger
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(orchestrator *pipeline.Orchestrator, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/admin/query", h.Query)
}

// Query handles POST /api/v1/admin/query. A missing session id starts a new
// session; the generated id comes back in the envelope so the client can
// continue the conversation.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid query request body", zap.Error(err))
		if err := WriteFailure(w, apperrors.New(apperrors.KindInvalidInput, "Invalid request body."), ""); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := h.orchestrator.Handle(r.Context(), pipeline.Request{
		Utterance:   req.Query,
		SessionID:   sessionID,
		BranchID:    req.BranchID,
		Role:        middleware.RoleFromContext(r.Context()),
		RefineQuery: req.RefineQuery,
	})
	if err != nil {
		if !apperrors.IsRefusal(err) {
			h.logger.Error("query pipeline failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		if err := WriteFailure(w, err, sessionID); err != nil {
			h.logger.Error("failed to write failure response", zap.Error(err))
		}
		return
	}

	if err := WriteSuccess(w, resp, sessionID); err != nil {
		h.logger.Error("failed to write query response", zap.Error(err))
	}
}
