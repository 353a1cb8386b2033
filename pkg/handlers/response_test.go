package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/pipeline"
)

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWriteSuccess_DataResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	resp := &pipeline.Response{
		SQL:         "SELECT COUNT(*) FROM claims",
		Explanation: "counts claims",
		Confidence:  0.95,
		Result: &models.ExecutionResult{
			Columns:  []string{"Claim Count"},
			Rows:     []models.Row{{"Claim Count": float64(42)}},
			RowCount: 1,
		},
		Visualization: models.VisualizationHint{Type: "bar", Columns: []string{"Diagnosis", "Claim Count"}},
		Summary:       "42 claims were filed.",
		Source:        models.SourceGroundedTemplate,
	}

	require.NoError(t, WriteSuccess(rec, resp, "s1"))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[QueryResponse](t, rec)
	assert.True(t, body.Success)
	require.NotNil(t, body.SQL)
	assert.Equal(t, "SELECT COUNT(*) FROM claims", *body.SQL)
	assert.Equal(t, "counts claims", body.SQLExplanation)
	assert.Equal(t, 0.95, body.Confidence)
	assert.Equal(t, 1, body.RowCount)
	require.Len(t, body.Data, 1)
	assert.Equal(t, float64(42), body.Data[0]["Claim Count"])
	require.NotNil(t, body.Visualization)
	assert.Equal(t, "bar", body.Visualization.Type)
	assert.Equal(t, "template", body.Source)
	assert.Equal(t, "s1", body.SessionID)
}

func TestWriteSuccess_ChatResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	resp := &pipeline.Response{
		Summary:       "Hello! Ask me about claims.",
		Visualization: models.VisualizationHint{Type: "none"},
	}

	require.NoError(t, WriteSuccess(rec, resp, "s1"))

	body := decodeBody[QueryResponse](t, rec)
	assert.True(t, body.Success)
	assert.Nil(t, body.SQL)
	assert.Nil(t, body.Visualization)
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
	assert.Equal(t, "Hello! Ask me about claims.", body.Summary)
}

func TestWriteFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "refusal ships with 200",
			err:        apperrors.New(apperrors.KindOutOfScope, "Out of scope."),
			wantStatus: 200,
			wantType:   "OutOfScope",
		},
		{
			name:       "clarification ships with 200",
			err:        apperrors.New(apperrors.KindClarification, "Which time range?"),
			wantStatus: 200,
			wantType:   "Clarification",
		},
		{
			name:       "classified failure ships with 200",
			err:        apperrors.New(apperrors.KindTimeout, "The query took too long."),
			wantStatus: 200,
			wantType:   "Timeout",
		},
		{
			name:       "auth failure gets 401",
			err:        apperrors.New(apperrors.KindAuthFailure, "Invalid API key."),
			wantStatus: 401,
			wantType:   "AuthFailure",
		},
		{
			name:       "untagged error gets 500",
			err:        errors.New("nil pointer somewhere"),
			wantStatus: 500,
			wantType:   "Internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteFailure(rec, tt.err, "s1"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[FailureResponse](t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantType, body.ErrorType)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, "s1", body.SessionID)
		})
	}
}

func TestWriteFailure_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteFailure(rec, errors.New("pq: relation secret_table does not exist"), ""))

	body := decodeBody[FailureResponse](t, rec)
	assert.NotContains(t, body.Error, "secret_table")
}
