package generation

import (
	"context"
	"time"

	"flowai-video-server/modules/common/model"
	"flowai-video-server/modules/upload"
)

const (
	VideoQueue   = "jobs:video"
	EventChannel = "generation:events"
)

// JobStore - generation job 영속화 (database.Client 가 구현)
type JobStore interface {
	InsertJob(ctx context.Context, job *model.GenerationJob) error
	FetchJob(ctx context.Context, jobID string) (*model.GenerationJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string) error
	MarkJobProcessing(ctx context.Context, jobID string) error
	UpdateJobCompleted(ctx context.Context, jobID string, videoURL string) error
	UpdateJobFailed(ctx context.Context, jobID string, errorMessage string) error
}

// JobQueue - job id 큐
type JobQueue interface {
	Push(ctx context.Context, jobID string) (int64, error)
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// CancelFlags - job 취소 플래그
type CancelFlags interface {
	SetCancelled(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) bool
}

// Archiver - 생성된 비디오를 자체 스토리지로 복사
type Archiver interface {
	ArchiveVideo(ctx context.Context, sessionID, jobID, srcURL string) (string, error)
}

// ImageUploader - 입력 이미지를 스토리지에 올리고 공개 URL 반환
type ImageUploader interface {
	UploadImage(ctx context.Context, sessionID, jobID, imageID, mediaType string, data []byte) (string, error)
}

// EventPublisher - 완료/실패 이벤트 발행
type EventPublisher interface {
	Publish(ctx context.Context, event GenerationEvent) error
}

// VideoAPI - 외부 비디오 생성 API
type VideoAPI interface {
	CreateTask(ctx context.Context, req *CreateTaskRequest) (string, error)
	WaitForCompletion(ctx context.Context, taskID string, maxAttempts int) (*TaskStatusResponse, error)
}

// GenerationEvent - generation:events 채널 메시지
type GenerationEvent struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	VideoURL  string `json:"video_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result converts the event into what the upload controller consumes.
func (e GenerationEvent) Result() upload.GenerationResult {
	return upload.GenerationResult{
		JobID:    e.JobID,
		Status:   e.Status,
		VideoURL: e.VideoURL,
		Error:    e.Error,
	}
}

// CreateTaskRequest - 비디오 API 작업 생성 요청
type CreateTaskRequest struct {
	Prompt         string      `json:"prompt"`
	Images         []string    `json:"images"`
	ReferenceVideo *TaskVideo  `json:"reference_video,omitempty"`
	Settings       TaskOptions `json:"settings"`
}

type TaskVideo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type TaskOptions struct {
	Duration    string `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
	Quality     string `json:"quality"`
	FPS         string `json:"fps"`
}

// CreateTaskResponse - 작업 생성 응답
type CreateTaskResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// Task statuses reported by the video API.
const (
	TaskQueued     = "queued"
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
)

// TaskStatusResponse - 작업 상태 조회 응답
type TaskStatusResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// APIStatus - GET /api/status 응답
type APIStatus struct {
	Online    bool   `json:"online"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// JobStatusResponse - GET /api/generations/{jobId} 응답
type JobStatusResponse struct {
	Success  bool   `json:"success"`
	JobID    string `json:"job_id,omitempty"`
	Status   string `json:"status,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}
