package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus APIStatus

func (s staticStatus) CheckStatus(context.Context) *APIStatus {
	status := APIStatus(s)
	return &status
}

func newTestRouter(store JobStore, status StatusChecker) *mux.Router {
	r := mux.NewRouter()
	NewHandler(store, status, NewCanceller(store, newMemQueue(), nil)).RegisterRoutes(r)
	return r
}

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   staticStatus
		wantCode int
	}{
		{name: "online", status: staticStatus{Online: true, Status: "online"}, wantCode: http.StatusOK},
		{name: "offline", status: staticStatus{Status: "offline", Error: "dial tcp"}, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(newMemStore(), tt.status).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var got APIStatus
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, APIStatus(tt.status), got)
		})
	}
}

func TestHandleJobStatus(t *testing.T) {
	store := newMemStore()
	seedJob(t, store)
	require.NoError(t, store.UpdateJobCompleted(context.Background(), "job-1", "https://cdn/v.mp4"))
	router := newTestRouter(store, staticStatus{Online: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/job-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, JobStatusResponse{Success: true, JobID: "job-1", Status: "completed", VideoURL: "https://cdn/v.mp4"}, got)
}

func TestHandleJobStatus_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(newMemStore(), staticStatus{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Job not found")
	})

	t.Run("store error", func(t *testing.T) {
		store := newMemStore()
		store.fetchErr = errBoom
		rec := httptest.NewRecorder()
		newTestRouter(store, staticStatus{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/job-1", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleCancel(t *testing.T) {
	store := newMemStore()
	seedJob(t, store)
	router := newTestRouter(store, staticStatus{Online: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations/job-1/cancel", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, JobStatusResponse{Success: true, JobID: "job-1", Status: "user_cancelled"}, got)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations/job-1/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job already user_cancelled")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
