package ports

import (
	"context"
	"time"

	"videostream/internal/domain"
)

// JobRepository is the persisted job table. ClaimNext must be atomic: two
// concurrent callers never receive the same job.
type JobRepository interface {
	Create(ctx context.Context, job domain.ProcessingJob) error
	Get(ctx context.Context, id domain.JobID) (domain.ProcessingJob, error)
	ListByVideo(ctx context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error)
	// ClaimNext marks the oldest PENDING job of jobType as PROCESSING and
	// returns it, skipping videos that already have a PROCESSING job of that
	// type. It returns domain.ErrNotFound when nothing is claimable.
	ClaimNext(ctx context.Context, jobType domain.JobType, workerID string, now time.Time) (domain.ProcessingJob, error)
	Complete(ctx context.Context, id domain.JobID, now time.Time) error
	Fail(ctx context.Context, id domain.JobID, message string, now time.Time) error
	// ListStale returns PROCESSING jobs started before the given instant.
	ListStale(ctx context.Context, startedBefore time.Time) ([]domain.ProcessingJob, error)
}

type VideoRepository interface {
	Create(ctx context.Context, video domain.VideoRecord) error
	Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error)
	// Patch updates only the fields set in patch, so concurrent jobs on the
	// same video do not overwrite each other.
	Patch(ctx context.Context, id domain.VideoID, patch domain.VideoPatch, now time.Time) error
}

type WatchStateRepository interface {
	Upsert(ctx context.Context, state domain.WatchState) error
	Get(ctx context.Context, userID string, videoID domain.VideoID) (domain.WatchState, error)
}
