package usecase

import (
	"context"
	"errors"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
)

type GetJob struct {
	Jobs ports.JobRepository
}

func (uc GetJob) Execute(ctx context.Context, id domain.JobID) (domain.ProcessingJob, error) {
	job, err := uc.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ProcessingJob{}, domain.ErrNotFound
		}
		return domain.ProcessingJob{}, wrapRepo(err)
	}
	return job, nil
}

type ListJobs struct {
	Jobs   ports.JobRepository
	Videos ports.VideoRepository
}

// Execute lists every job of a video, oldest first. Unknown videos are
// reported as domain.ErrNotFound.
func (uc ListJobs) Execute(ctx context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error) {
	if _, err := uc.Videos.Get(ctx, videoID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapRepo(err)
	}
	jobs, err := uc.Jobs.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, wrapRepo(err)
	}
	return jobs, nil
}
