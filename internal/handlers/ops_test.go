package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/nd3-capture-pipeline/internal/metrics"
	"github.com/tendant/nd3-capture-pipeline/internal/queue"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

type staticStatus queue.Status

func (s staticStatus) Status() queue.Status { return queue.Status(s) }

func serve(h *OpsHandler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	h := NewOpsHandler(staticStatus{}, nil, "v1.2.3")

	rec := serve(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "v1.2.3", body["version"])
}

func TestHandleHealth_Stopping(t *testing.T) {
	h := NewOpsHandler(staticStatus{Closed: true}, nil, "dev")

	rec := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleQueue(t *testing.T) {
	h := NewOpsHandler(staticStatus{
		Depth:     2,
		Current:   "capture1-1700000000123",
		Stage:     pipeline.StageOrchestrating,
		Completed: 5,
		Failed:    1,
	}, nil, "dev")

	rec := serve(h, http.MethodGet, "/v1/queue")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got queue.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 2, got.Depth)
	assert.Equal(t, "capture1-1700000000123", got.Current)
	assert.Equal(t, pipeline.StageOrchestrating, got.Stage)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewOpsHandler(staticStatus{}, nil, "dev")

	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPost, "/v1/queue").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodDelete, "/health").Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	h := NewOpsHandler(staticStatus{}, m.Handler(), "dev")

	rec := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nd3_queue_depth")

	assert.Equal(t, http.StatusNotFound, serve(NewOpsHandler(staticStatus{}, nil, "dev"), http.MethodGet, "/metrics").Code)
}
