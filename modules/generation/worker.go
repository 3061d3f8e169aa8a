package generation

import (
	"context"
	"errors"
	"log"
	"time"

	"flowai-video-server/modules/common/model"
)

const (
	defaultMaxAttempts = 120 // 5초 간격, 약 10분
	popTimeout         = 5 * time.Second
)

// Worker - jobs:video 큐 소비자
type Worker struct {
	store       JobStore
	queue       JobQueue
	flags       CancelFlags
	api         VideoAPI
	events      EventPublisher
	archiver    Archiver
	maxAttempts int
}

// NewWorker - Worker 생성
func NewWorker(store JobStore, queue JobQueue, flags CancelFlags, api VideoAPI, events EventPublisher) *Worker {
	return &Worker{
		store:       store,
		queue:       queue,
		flags:       flags,
		api:         api,
		events:      events,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithArchiver copies finished videos into storage before they are reported.
func (w *Worker) WithArchiver(a Archiver) *Worker {
	w.archiver = a
	return w
}

// Run - 큐 감시 시작, ctx 가 끝나면 종료
func (w *Worker) Run(ctx context.Context) {
	log.Println("🔄 [Generation Worker] Starting video queue worker...")
	log.Printf("👀 [Generation Worker] Watching queue: %s", VideoQueue)

	for {
		if ctx.Err() != nil {
			log.Println("🛑 [Generation Worker] Stopped")
			return
		}

		jobID, err := w.queue.Pop(ctx, popTimeout)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("❌ [Generation Worker] Queue pop error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		log.Printf("🎯 [Generation Worker] Received video job: %s", jobID)
		// 비디오 생성은 오래 걸리므로 동기 처리
		w.ProcessJob(ctx, jobID)
	}
}

// ProcessJob runs one job to completion and publishes the outcome.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) {
	job, err := w.store.FetchJob(ctx, jobID)
	if err != nil {
		log.Printf("❌ [Generation Worker] Failed to fetch job %s: %v", jobID, err)
		return
	}
	if model.IsTerminal(job.JobStatus) {
		log.Printf("⚠️  [Generation Worker] Job %s already %s, skipping", jobID, job.JobStatus)
		return
	}

	// 조회 이후 취소됐을 수 있음. processing 전환은 pending 인 row 에만 적용된다
	if w.cancelled(ctx, jobID, "before processing") {
		return
	}
	if err := w.store.MarkJobProcessing(ctx, jobID); err != nil {
		log.Printf("⚠️  [Generation Worker] Failed to update job status: %v", err)
	}

	if len(job.JobInputData.Images) == 0 {
		w.fail(ctx, job, "no images in job input")
		return
	}

	// 작업 생성 전 취소 체크
	if w.cancelled(ctx, jobID, "before video task") {
		return
	}

	taskID, err := w.api.CreateTask(ctx, taskRequest(job))
	if err != nil {
		w.fail(ctx, job, err.Error())
		return
	}

	status, err := w.api.WaitForCompletion(ctx, taskID, w.maxAttempts)
	// 취소된 job 은 completed/failed 로 덮어쓰지 않음
	if w.cancelled(ctx, jobID, "after video task") {
		return
	}
	if err != nil {
		w.fail(ctx, job, err.Error())
		return
	}
	if status.VideoURL == "" {
		w.fail(ctx, job, "no video in result")
		return
	}

	videoURL := w.archive(ctx, job, status.VideoURL)

	if err := w.store.UpdateJobCompleted(ctx, jobID, videoURL); err != nil {
		log.Printf("⚠️  [Generation Worker] Failed to update job with video URL: %v", err)
	}
	w.publish(ctx, GenerationEvent{
		JobID:     jobID,
		SessionID: job.SessionID,
		Status:    model.StatusCompleted,
		VideoURL:  videoURL,
	})
	log.Printf("✅ [Generation Worker] Video job %s completed: %s", jobID, videoURL)
}

// archive falls back to the provider URL when storage fails.
func (w *Worker) archive(ctx context.Context, job *model.GenerationJob, videoURL string) string {
	if w.archiver == nil {
		return videoURL
	}
	archived, err := w.archiver.ArchiveVideo(ctx, job.SessionID, job.JobID, videoURL)
	if err != nil {
		log.Printf("⚠️  [Generation Worker] Failed to archive video for %s, keeping provider URL: %v", job.JobID, err)
		return videoURL
	}
	return archived
}

func (w *Worker) cancelled(ctx context.Context, jobID, stage string) bool {
	if w.flags == nil || !w.flags.IsCancelled(ctx, jobID) {
		return false
	}
	log.Printf("🛑 [Generation Worker] Job %s cancelled, stopping %s", jobID, stage)
	return true
}

func (w *Worker) fail(ctx context.Context, job *model.GenerationJob, reason string) {
	log.Printf("❌ [Generation Worker] Job %s failed: %s", job.JobID, reason)
	if err := w.store.UpdateJobFailed(ctx, job.JobID, reason); err != nil {
		log.Printf("⚠️  [Generation Worker] Failed to mark job failed: %v", err)
	}
	w.publish(ctx, GenerationEvent{
		JobID:     job.JobID,
		SessionID: job.SessionID,
		Status:    model.StatusFailed,
		Error:     reason,
	})
}

func (w *Worker) publish(ctx context.Context, event GenerationEvent) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(ctx, event); err != nil {
		log.Printf("⚠️  [Generation Worker] Failed to publish event for %s: %v", event.JobID, err)
	}
}

func taskRequest(job *model.GenerationJob) *CreateTaskRequest {
	req := &CreateTaskRequest{
		Prompt: job.Prompt,
		Images: make([]string, 0, len(job.JobInputData.Images)),
		Settings: TaskOptions{
			Duration:    job.Duration,
			AspectRatio: job.AspectRatio,
			Quality:     job.Quality,
			FPS:         job.FPS,
		},
	}
	for _, img := range job.JobInputData.Images {
		req.Images = append(req.Images, img.Source())
	}
	if v := job.JobInputData.ReferenceVideo; v != nil {
		req.ReferenceVideo = &TaskVideo{Name: v.Name, Size: v.Size}
	}
	return req
}
