package usecase

import (
	"context"
	"errors"
	"time"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/metrics"
)

// EnqueueJob records a PENDING job for an existing video. It never waits for
// a worker.
type EnqueueJob struct {
	Jobs   ports.JobRepository
	Videos ports.VideoRepository
	Now    func() time.Time
	NewID  func() string
}

func (uc EnqueueJob) Execute(ctx context.Context, videoID domain.VideoID, jobType domain.JobType) (domain.ProcessingJob, error) {
	if _, err := domain.ParseJobType(string(jobType)); err != nil {
		return domain.ProcessingJob{}, err
	}
	if uc.Videos != nil {
		if _, err := uc.Videos.Get(ctx, videoID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ProcessingJob{}, domain.ErrNotFound
			}
			return domain.ProcessingJob{}, wrapRepo(err)
		}
	}

	now := clock(uc.Now)
	job := domain.ProcessingJob{
		ID:        domain.JobID(newID(uc.NewID)),
		VideoID:   videoID,
		Type:      jobType,
		Status:    domain.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.Jobs.Create(ctx, job); err != nil {
		return domain.ProcessingJob{}, wrapRepo(err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(string(jobType)).Inc()
	return job, nil
}
