package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"

	"flowai-video-server/modules/common/config"
	"flowai-video-server/modules/common/model"
)

const jobsTable = "flowai_generation_jobs"

var ErrJobNotFound = errors.New("job not found")

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &Client{
		supabase: supabaseClient,
	}, nil
}

// InsertJob - 새 generation job 저장
func (c *Client) InsertJob(ctx context.Context, job *model.GenerationJob) error {
	log.Printf("📝 Inserting job %s (session: %s, images: %d)", job.JobID, job.SessionID, job.ImageCount)

	_, _, err := c.supabase.From(jobsTable).
		Insert(job, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// FetchJob - job_id 로 job 조회
func (c *Client) FetchJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var jobs []model.GenerationJob

	data, _, err := c.supabase.From(jobsTable).
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return &jobs[0], nil
}

// UpdateJobStatus - Job 상태 업데이트
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	log.Printf("📝 Updating job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"job_status": status,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// MarkJobProcessing moves a pending job to processing. Jobs in any other
// status (e.g. user_cancelled) are left as they are.
func (c *Client) MarkJobProcessing(ctx context.Context, jobID string) error {
	log.Printf("📝 Updating job %s status to: %s", jobID, model.StatusProcessing)

	updateData := map[string]interface{}{
		"job_status": model.StatusProcessing,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Eq("job_status", model.StatusPending).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return nil
}

// UpdateJobCompleted - 완료 처리 + 결과 비디오 URL 저장 (취소된 job 제외)
func (c *Client) UpdateJobCompleted(ctx context.Context, jobID string, videoURL string) error {
	updateData := map[string]interface{}{
		"job_status": model.StatusCompleted,
		"video_url":  videoURL,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Neq("job_status", model.StatusUserCancelled).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	log.Printf("✅ Job %s completed: %s", jobID, videoURL)
	return nil
}

// UpdateJobFailed - 실패 처리 + 에러 메시지 저장 (취소된 job 제외)
func (c *Client) UpdateJobFailed(ctx context.Context, jobID string, errorMessage string) error {
	updateData := map[string]interface{}{
		"job_status":    model.StatusFailed,
		"error_message": errorMessage,
		"updated_at":    "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Neq("job_status", model.StatusUserCancelled).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	log.Printf("❌ Job %s failed: %s", jobID, errorMessage)
	return nil
}
