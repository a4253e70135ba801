package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStore provides an in-memory render.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]render.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]render.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job render.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob applies a status transition. Empty artifact fields keep their previous values.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, update render.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = update.Status
	job.ErrorText = update.ErrorText
	if update.BlobURI != "" {
		job.BlobURI = update.BlobURI
	}
	if update.MirrorURI != "" {
		job.MirrorURI = update.MirrorURI
	}
	if update.Hash != "" {
		job.Hash = update.Hash
	}
	now := s.now()
	if update.Status == render.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if update.Status.IsTerminal() {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (render.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return render.Job{}, ErrJobNotFound
	}
	return job, nil
}
