package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/feedback"
)

func newFeedbackMux(t *testing.T, dir string, enabled bool) *http.ServeMux {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := feedback.NewStore(dir, enabled, logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewFeedbackHandler(store, logger).RegisterRoutes(mux)
	return mux
}

func TestFeedbackHandler_Submit(t *testing.T) {
	dir := t.TempDir()
	mux := newFeedbackMux(t, dir, true)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/admin/feedback",
		strings.NewReader(`{"request_id": "r1", "comment": "great answer", "helpful": true}`)))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stored":true`)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestFeedbackHandler_DisabledStoreAcknowledges(t *testing.T) {
	mux := newFeedbackMux(t, t.TempDir(), false)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/admin/feedback",
		strings.NewReader(`{"request_id": "r1"}`)))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stored":false`)
}

func TestFeedbackHandler_InvalidBody(t *testing.T) {
	mux := newFeedbackMux(t, t.TempDir(), true)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/admin/feedback", strings.NewReader("{")))

	assert.Equal(t, 400, rec.Code)
}
