package generation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"flowai-video-server/modules/common/model"
)

const cancelledReason = "cancelled by user"

// ErrJobFinished is returned when cancelling a job that already reached a terminal status.
var ErrJobFinished = errors.New("job already finished")

// Canceller - 사용자 취소 요청 처리
type Canceller struct {
	store  JobStore
	flags  CancelFlags
	events EventPublisher
}

func NewCanceller(store JobStore, flags CancelFlags, events EventPublisher) *Canceller {
	return &Canceller{store: store, flags: flags, events: events}
}

// Cancel flags the job, marks it user_cancelled and publishes the outcome so
// the owning session leaves progress mode right away. The worker stops at
// its next checkpoint.
func (c *Canceller) Cancel(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	log.Printf("🛑 [Generation] Cancel requested for job: %s", jobID)

	job, err := c.store.FetchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if model.IsTerminal(job.JobStatus) {
		log.Printf("⚠️  [Generation] Job already %s: %s", job.JobStatus, jobID)
		return job, fmt.Errorf("%w: %s", ErrJobFinished, job.JobStatus)
	}

	// 1. Redis 취소 플래그
	if err := c.flags.SetCancelled(ctx, jobID); err != nil {
		return nil, err
	}

	// 2. DB 상태 변경
	if err := c.store.UpdateJobStatus(ctx, jobID, model.StatusUserCancelled); err != nil {
		return nil, fmt.Errorf("failed to mark job cancelled: %w", err)
	}
	job.JobStatus = model.StatusUserCancelled

	// 3. 세션에 알림
	if c.events != nil {
		event := GenerationEvent{
			JobID:     jobID,
			SessionID: job.SessionID,
			Status:    model.StatusUserCancelled,
			Error:     cancelledReason,
		}
		if err := c.events.Publish(ctx, event); err != nil {
			log.Printf("⚠️  [Generation] Failed to publish cancel event for %s: %v", jobID, err)
		}
	}

	log.Printf("✅ [Generation] Job %s cancelled", jobID)
	return job, nil
}
