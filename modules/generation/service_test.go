package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowai-video-server/modules/common/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewService(&config.Config{VideoAPIURL: srv.URL + "/v1/videos/", VideoAPIKey: "secret"})
	s.pollInterval = time.Millisecond
	return s
}

func TestService_CreateTask(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/videos", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateTaskRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sunset", req.Prompt)
		assert.Equal(t, []string{"data:a"}, req.Images)

		json.NewEncoder(w).Encode(CreateTaskResponse{TaskID: "task-9"})
	})

	id, err := s.CreateTask(context.Background(), &CreateTaskRequest{Prompt: "sunset", Images: []string{"data:a"}})

	require.NoError(t, err)
	assert.Equal(t, "task-9", id)
}

func TestService_CreateTaskErrors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		})
		_, err := s.CreateTask(context.Background(), &CreateTaskRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("missing task id", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(CreateTaskResponse{Message: "rejected"})
		})
		_, err := s.CreateTask(context.Background(), &CreateTaskRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rejected")
	})
}

func TestService_WaitForCompletion(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/task-1", r.URL.Path)
		status := TaskStatusResponse{TaskID: "task-1", Status: TaskProcessing, Progress: 50}
		if calls.Add(1) >= 3 {
			status = TaskStatusResponse{TaskID: "task-1", Status: TaskSucceeded, VideoURL: "https://cdn/v.mp4"}
		}
		json.NewEncoder(w).Encode(status)
	})

	status, err := s.WaitForCompletion(context.Background(), "task-1", 10)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/v.mp4", status.VideoURL)
	assert.EqualValues(t, 3, calls.Load())
}

func TestService_WaitForCompletionFailedTask(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TaskStatusResponse{Status: TaskFailed, Error: "content policy"})
	})

	_, err := s.WaitForCompletion(context.Background(), "task-1", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "content policy")
}

func TestService_WaitForCompletionTimeout(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TaskStatusResponse{Status: TaskQueued})
	})

	_, err := s.WaitForCompletion(context.Background(), "task-1", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestService_WaitForCompletionCancelled(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TaskStatusResponse{Status: TaskQueued})
	})
	s.pollInterval = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitForCompletion(ctx, "task-1", 10)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_CheckStatus(t *testing.T) {
	t.Run("online", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/videos/status", r.URL.Path)
			w.Write([]byte(`{"ok":true}`))
		})
		status := s.CheckStatus(context.Background())
		assert.True(t, status.Online)
		assert.Equal(t, "online", status.Status)
	})

	t.Run("offline", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		status := s.CheckStatus(context.Background())
		assert.False(t, status.Online)
		assert.Equal(t, "offline", status.Status)
		assert.NotEmpty(t, status.Error)
	})
}
