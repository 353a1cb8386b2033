// Package handlers implements the HTTP boundary: the query endpoint,
// session management, schema refresh, feedback capture, and health checks.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/pipeline"
)

// QueryResponse is the success envelope for the query endpoint.
type QueryResponse struct {
	Success        bool                      `json:"success"`
	SQL            *string                   `json:"sql"`
	SQLExplanation string                    `json:"sql_explanation,omitempty"`
	Confidence     float64                   `json:"confidence,omitempty"`
	RowCount       int                       `json:"row_count"`
	Data           []models.Row              `json:"data"`
	Truncated      bool                      `json:"truncated,omitempty"`
	Visualization  *models.VisualizationHint `json:"visualization,omitempty"`
	Summary        string                    `json:"summary"`
	Source         string                    `json:"source,omitempty"`
	SessionID      string                    `json:"session_id,omitempty"`
}

// FailureResponse is the refusal and failure envelope. Governed refusals
// ship with HTTP 200; only unexpected faults get 500.
type FailureResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	SessionID string `json:"session_id,omitempty"`
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes the success envelope for a pipeline response.
func WriteSuccess(w http.ResponseWriter, resp *pipeline.Response, sessionID string) error {
	out := QueryResponse{
		Success:   true,
		Data:      []models.Row{},
		Summary:   resp.Summary,
		SessionID: sessionID,
	}
	if resp.SQL != "" {
		sql := resp.SQL
		out.SQL = &sql
		out.SQLExplanation = resp.Explanation
		out.Confidence = resp.Confidence
		out.Source = sourceLabel(resp.Source)
	}
	if resp.Result != nil {
		out.RowCount = resp.Result.RowCount
		out.Truncated = resp.Result.Truncated
		if resp.Result.Rows != nil {
			out.Data = resp.Result.Rows
		}
	}
	if resp.Visualization.Type != "" && resp.Visualization.Type != "none" {
		viz := resp.Visualization
		out.Visualization = &viz
	}
	return WriteJSON(w, http.StatusOK, out)
}

// WriteFailure writes the failure envelope for a pipeline error. Refusals
// and classified failures return 200; unclassified faults return 500 with a
// generic message.
func WriteFailure(w http.ResponseWriter, err error, sessionID string) error {
	kind := apperrors.KindOf(err)
	status := http.StatusOK
	if kind == "" {
		status = http.StatusInternalServerError
		kind = "Internal"
	} else if kind == apperrors.KindAuthFailure {
		status = http.StatusUnauthorized
	}

	return WriteJSON(w, status, FailureResponse{
		Success:   false,
		Error:     apperrors.UserMessage(err),
		ErrorType: string(kind),
		SessionID: sessionID,
	})
}

func sourceLabel(source models.SQLSource) string {
	switch source {
	case models.SourceGroundedTemplate:
		return "template"
	case models.SourceLLMGenerated:
		return "llm"
	default:
		return ""
	}
}
