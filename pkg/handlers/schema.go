package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/schema"
	"github.com/carelens/carelens-engine/pkg/warehouse"
)

// SchemaHandler exposes the catalogue over HTTP: inspection plus the
// explicit admin refresh that re-introspects the warehouse.
type SchemaHandler struct {
	catalogue    *schema.Catalogue
	introspector warehouse.Introspector
	logger       *zap.Logger
}

// NewSchemaHandler creates the schema handler.
func NewSchemaHandler(catalogue *schema.Catalogue, introspector warehouse.Introspector, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{catalogue: catalogue, introspector: introspector, logger: logger}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/schema/tables", h.Tables)
	mux.HandleFunc("POST /api/v1/admin/schema/refresh", h.Refresh)
}

// Tables handles GET /api/v1/admin/schema/tables.
func (h *SchemaHandler) Tables(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"tables": h.catalogue.Tables(),
	}); err != nil {
		h.logger.Error("failed to write schema tables", zap.Error(err))
	}
}

// Refresh handles POST /api/v1/admin/schema/refresh. Requests in flight
// keep reading the old snapshot until the swap completes.
func (h *SchemaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.catalogue.Refresh(r.Context(), h.introspector); err != nil {
		h.logger.Error("schema refresh failed", zap.Error(err))
		if err := WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Schema refresh failed.",
		}); err != nil {
			h.logger.Error("failed to write refresh error", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tables":  h.catalogue.Tables(),
	}); err != nil {
		h.logger.Error("failed to write refresh response", zap.Error(err))
	}
}
