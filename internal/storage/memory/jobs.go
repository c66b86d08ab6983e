package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"videostream/internal/domain"
)

// JobStore is an in-process job table. Claims are serialized by one mutex,
// which is all the atomicity a single process needs. At most one job per
// (video, type) is PROCESSING at a time.
type JobStore struct {
	mu   sync.Mutex
	jobs map[domain.JobID]domain.ProcessingJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[domain.JobID]domain.ProcessingJob)}
}

func (s *JobStore) Create(_ context.Context, job domain.ProcessingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *JobStore) Get(_ context.Context, id domain.JobID) (domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ProcessingJob{}, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *JobStore) ListByVideo(_ context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProcessingJob, 0)
	for _, job := range s.jobs {
		if job.VideoID == videoID {
			out = append(out, cloneJob(job))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *JobStore) ClaimNext(_ context.Context, jobType domain.JobType, workerID string, now time.Time) (domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A video with a job of this type in flight waits until it finishes.
	busy := make(map[domain.VideoID]struct{})
	for _, job := range s.jobs {
		if job.Type == jobType && job.Status == domain.JobProcessing {
			busy[job.VideoID] = struct{}{}
		}
	}

	var (
		next  domain.ProcessingJob
		found bool
	)
	for _, job := range s.jobs {
		if job.Type != jobType || job.Status != domain.JobPending {
			continue
		}
		if _, ok := busy[job.VideoID]; ok {
			continue
		}
		if !found || olderThan(job, next) {
			next = job
			found = true
		}
	}
	if !found {
		return domain.ProcessingJob{}, domain.ErrNotFound
	}

	started := now
	next.Status = domain.JobProcessing
	next.WorkerID = workerID
	next.StartedAt = &started
	next.UpdatedAt = now
	s.jobs[next.ID] = next
	return cloneJob(next), nil
}

func (s *JobStore) Complete(_ context.Context, id domain.JobID, now time.Time) error {
	return s.finish(id, domain.JobCompleted, "", now)
}

func (s *JobStore) Fail(_ context.Context, id domain.JobID, message string, now time.Time) error {
	if message == "" {
		message = "unknown error"
	}
	return s.finish(id, domain.JobFailed, message, now)
}

func (s *JobStore) finish(id domain.JobID, status domain.JobStatus, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, status)
	}
	finished := now
	job.Status = status
	job.Error = message
	job.FinishedAt = &finished
	job.UpdatedAt = now
	s.jobs[id] = job
	return nil
}

func (s *JobStore) ListStale(_ context.Context, startedBefore time.Time) ([]domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProcessingJob, 0)
	for _, job := range s.jobs {
		if job.Status == domain.JobProcessing && job.StartedAt != nil && job.StartedAt.Before(startedBefore) {
			out = append(out, cloneJob(job))
		}
	}
	sortByCreated(out)
	return out, nil
}

func olderThan(a, b domain.ProcessingJob) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func sortByCreated(jobs []domain.ProcessingJob) {
	sort.Slice(jobs, func(i, j int) bool { return olderThan(jobs[i], jobs[j]) })
}

func cloneJob(job domain.ProcessingJob) domain.ProcessingJob {
	if job.StartedAt != nil {
		t := *job.StartedAt
		job.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		job.FinishedAt = &t
	}
	return job
}
