package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"flowai-video-server/modules/common/config"
)

// Service - 비디오 생성 API 클라이언트
type Service struct {
	apiURL       string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewService - Service 생성
func NewService(cfg *config.Config) *Service {
	return &Service{
		apiURL: strings.TrimSuffix(cfg.VideoAPIURL, "/"),
		apiKey: cfg.VideoAPIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: 5 * time.Second,
	}
}

// CreateTask - 비디오 생성 작업 시작, task id 반환
func (s *Service) CreateTask(ctx context.Context, reqData *CreateTaskRequest) (string, error) {
	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("🚀 [Generation] Creating video task (%d images)...", len(reqData.Images))

	body, err := s.do(req)
	if err != nil {
		return "", err
	}

	var result CreateTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("API returned no task id: %s", result.Message)
	}

	log.Printf("✅ [Generation] Task created: %s", result.TaskID)
	return result.TaskID, nil
}

// GetTaskStatus - 작업 상태 조회
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	var result TaskStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// WaitForCompletion - 작업 완료 대기 (폴링)
func (s *Service) WaitForCompletion(ctx context.Context, taskID string, maxAttempts int) (*TaskStatusResponse, error) {
	log.Printf("⏳ [Generation] Waiting for task %s to complete...", taskID)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := s.GetTaskStatus(ctx, taskID)
		switch {
		case err != nil:
			log.Printf("⚠️  [Generation] Attempt %d: Failed to get status: %v", attempt, err)
		case status.Status == TaskSucceeded:
			log.Printf("✅ [Generation] Task %s completed successfully", taskID)
			return status, nil
		case status.Status == TaskFailed:
			return status, fmt.Errorf("task failed: %s", status.Error)
		case status.Status == TaskQueued, status.Status == TaskProcessing:
			log.Printf("📊 [Generation] Attempt %d: %s (%d%%)", attempt, status.Status, status.Progress)
		default:
			log.Printf("⚠️  [Generation] Unknown status: %s", status.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	return nil, fmt.Errorf("timeout waiting for task completion after %d attempts", maxAttempts)
}

// CheckStatus - API 상태 확인
func (s *Service) CheckStatus(ctx context.Context) *APIStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/status", nil)
	if err != nil {
		return &APIStatus{Status: "offline", Error: err.Error()}
	}

	start := time.Now()
	_, err = s.do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		log.Printf("⚠️  [Generation] Video API unreachable: %v", err)
		return &APIStatus{Status: "offline", LatencyMs: latency, Error: err.Error()}
	}
	return &APIStatus{Online: true, Status: "online", LatencyMs: latency}
}

func (s *Service) do(req *http.Request) ([]byte, error) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
