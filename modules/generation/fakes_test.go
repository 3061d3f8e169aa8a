package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowai-video-server/modules/common/database"
	"flowai-video-server/modules/common/model"
)

type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*model.GenerationJob
	insertErr error
	fetchErr  error
	statuses  []string
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*model.GenerationJob)}
}

func (s *memStore) InsertJob(_ context.Context, job *model.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *memStore) FetchJob(_ context.Context, jobID string) (*model.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrJobNotFound, jobID)
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJobStatus(_ context.Context, jobID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	if job, ok := s.jobs[jobID]; ok {
		job.JobStatus = status
	}
	return nil
}

// transition mirrors the database's conditional updates.
func (s *memStore) transition(jobID, status string, allowed func(current string) bool, apply func(*model.GenerationJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !allowed(job.JobStatus) {
		return
	}
	s.statuses = append(s.statuses, status)
	job.JobStatus = status
	if apply != nil {
		apply(job)
	}
}

func notCancelled(current string) bool { return current != model.StatusUserCancelled }

func (s *memStore) MarkJobProcessing(_ context.Context, jobID string) error {
	s.transition(jobID, model.StatusProcessing, func(current string) bool { return current == model.StatusPending }, nil)
	return nil
}

func (s *memStore) UpdateJobCompleted(_ context.Context, jobID, videoURL string) error {
	s.transition(jobID, model.StatusCompleted, notCancelled, func(job *model.GenerationJob) { job.VideoURL = &videoURL })
	return nil
}

func (s *memStore) UpdateJobFailed(_ context.Context, jobID, msg string) error {
	s.transition(jobID, model.StatusFailed, notCancelled, func(job *model.GenerationJob) { job.ErrorMessage = &msg })
	return nil
}

func (s *memStore) job(id string) *model.GenerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

type memQueue struct {
	mu        sync.Mutex
	ids       []string
	pushErr   error
	ready     chan struct{}
	cancelled map[string]bool
	flagErr   error
}

func newMemQueue() *memQueue {
	return &memQueue{ready: make(chan struct{}, 64), cancelled: make(map[string]bool)}
}

func (q *memQueue) SetCancelled(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flagErr != nil {
		return q.flagErr
	}
	q.cancelled[jobID] = true
	return nil
}

func (q *memQueue) IsCancelled(_ context.Context, jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[jobID]
}

func (q *memQueue) Push(_ context.Context, jobID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return 0, q.pushErr
	}
	q.ids = append(q.ids, jobID)
	q.ready <- struct{}{}
	return int64(len(q.ids)), nil
}

func (q *memQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case <-q.ready:
	case <-time.After(timeout):
		return "", ErrQueueEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

type fakeAPI struct {
	mu        sync.Mutex
	requests  []*CreateTaskRequest
	createErr error
	result    *TaskStatusResponse
	waitErr   error
	onWait    func()
}

func (a *fakeAPI) CreateTask(_ context.Context, req *CreateTaskRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.createErr != nil {
		return "", a.createErr
	}
	return "task-1", nil
}

func (a *fakeAPI) WaitForCompletion(context.Context, string, int) (*TaskStatusResponse, error) {
	if a.onWait != nil {
		a.onWait()
	}
	if a.waitErr != nil {
		return nil, a.waitErr
	}
	return a.result, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GenerationEvent
	seen   chan GenerationEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{seen: make(chan GenerationEvent, 16)}
}

func (p *recordingPublisher) Publish(_ context.Context, event GenerationEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.seen <- event
	return nil
}

func (p *recordingPublisher) all() []GenerationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]GenerationEvent(nil), p.events...)
}

var errBoom = errors.New("boom")
