package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flowai-video-server/modules/common/model"
	"flowai-video-server/modules/common/utils"
	"flowai-video-server/modules/upload"
)

// QueueGenerator stores the job row and hands the id to the worker queue.
type QueueGenerator struct {
	store    JobStore
	queue    JobQueue
	uploader ImageUploader
	newID    func() string
	now      func() time.Time
}

const imageUploadConcurrency = 4

func NewQueueGenerator(store JobStore, queue JobQueue) *QueueGenerator {
	return &QueueGenerator{
		store: store,
		queue: queue,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// WithImageUploader stores input images in storage so the job row keeps
// URLs instead of base64 payloads.
func (g *QueueGenerator) WithImageUploader(u ImageUploader) *QueueGenerator {
	g.uploader = u
	return g
}

// Submit implements upload.Generator.
func (g *QueueGenerator) Submit(ctx context.Context, req *upload.GenerationRequest) (string, error) {
	job := g.buildJob(req)
	g.uploadImages(ctx, job)

	if err := g.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	position, err := g.queue.Push(ctx, job.JobID)
	if err != nil {
		if ferr := g.store.UpdateJobFailed(ctx, job.JobID, "failed to enqueue: "+err.Error()); ferr != nil {
			log.Printf("⚠️  [Generation] Failed to mark job %s failed: %v", job.JobID, ferr)
		}
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Printf("✅ [Generation] Job %s enqueued (session: %s, position: %d)", job.JobID, req.SessionID, position)
	return job.JobID, nil
}

// uploadImages replaces each data URL with a storage URL. An image whose
// upload fails keeps its data URL.
func (g *QueueGenerator) uploadImages(ctx context.Context, job *model.GenerationJob) {
	if g.uploader == nil {
		return
	}

	var eg errgroup.Group
	eg.SetLimit(imageUploadConcurrency)
	for i := range job.JobInputData.Images {
		img := &job.JobInputData.Images[i]
		eg.Go(func() error {
			mediaType, data, err := utils.FromDataURL(img.DataURL)
			if err == nil {
				img.URL, err = g.uploader.UploadImage(ctx, job.SessionID, job.JobID, img.ID, mediaType, data)
			}
			if err != nil {
				log.Printf("⚠️  [Generation] Image %s of job %s kept inline: %v", img.ID, job.JobID, err)
				return nil
			}
			img.DataURL = ""
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *QueueGenerator) buildJob(req *upload.GenerationRequest) *model.GenerationJob {
	now := g.now()
	input := model.JobInput{Images: make([]model.JobImage, 0, len(req.Images))}
	for _, img := range req.Images {
		input.Images = append(input.Images, model.JobImage{ID: img.ID, Name: img.Name, DataURL: img.DataURL})
	}
	if v := req.ReferenceVideo; v != nil {
		input.ReferenceVideo = &model.JobVideo{ID: v.ID, Name: v.Name, Size: v.Size, PreviewURL: v.PreviewURL}
	}

	return &model.GenerationJob{
		JobID:        g.newID(),
		SessionID:    req.SessionID,
		JobStatus:    model.StatusPending,
		Prompt:       req.Prompt,
		Duration:     req.Settings.Duration,
		AspectRatio:  req.Settings.AspectRatio,
		Quality:      req.Settings.Quality,
		FPS:          req.Settings.FPS,
		ImageCount:   len(req.Images),
		HasReference: req.ReferenceVideo != nil,
		JobInputData: input,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
