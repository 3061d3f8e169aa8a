package model

import "time"

// GenerationJob - flowai_generation_jobs 테이블 구조
type GenerationJob struct {
	JobID        string    `json:"job_id"`
	SessionID    string    `json:"session_id"`
	JobStatus    string    `json:"job_status"`
	Prompt       string    `json:"prompt"`
	Duration     string    `json:"duration"`
	AspectRatio  string    `json:"aspect_ratio"`
	Quality      string    `json:"quality"`
	FPS          string    `json:"fps"`
	ImageCount   int       `json:"image_count"`
	HasReference bool      `json:"has_reference"`
	JobInputData JobInput  `json:"job_input_data"`
	VideoURL     *string   `json:"video_url"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobInput - job_input_data JSONB 구조
type JobInput struct {
	Images         []JobImage `json:"images"`
	ReferenceVideo *JobVideo  `json:"referenceVideo,omitempty"`
}

// JobImage - 업로드된 이미지. 스토리지 업로드 성공 시 URL, 실패 시 base64 data URL
type JobImage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
}

// Source - provider 에 넘길 이미지 주소
func (i JobImage) Source() string {
	if i.URL != "" {
		return i.URL
	}
	return i.DataURL
}

// JobVideo - 레퍼런스 비디오 메타데이터
type JobVideo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"previewUrl"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	StatusUserCancelled = "user_cancelled"
)

// IsTerminal - 더 이상 상태가 바뀌지 않는 job 인지
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusUserCancelled
}
