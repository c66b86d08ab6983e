package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
)

type RegisterVideo struct {
	Videos  ports.VideoRepository
	Enqueue EnqueueJob
	Now     func() time.Time
	NewID   func() string
}

type RegisterVideoInput struct {
	OwnerID    string
	Title      string
	SourcePath string
	// VideoID is optional. Registering again under the same id reuses the
	// stored record and enqueues only the job types it is still missing, so a
	// caller can retry after a failed enqueue without orphaning the record.
	VideoID domain.VideoID
}

type RegisteredVideo struct {
	Video domain.VideoRecord     `json:"video"`
	Jobs  []domain.ProcessingJob `json:"jobs"`
}

// Execute stores the video record for a file already on disk and enqueues
// one job of every type for it.
func (uc RegisterVideo) Execute(ctx context.Context, input RegisterVideoInput) (RegisteredVideo, error) {
	path := strings.TrimSpace(input.SourcePath)
	if path == "" {
		return RegisteredVideo{}, invalidInput("source path is required")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return RegisteredVideo{}, invalidInput("source file not found")
	}

	video, jobs, err := uc.existing(ctx, input.VideoID, path)
	if err != nil {
		return RegisteredVideo{}, err
	}
	if video.ID == "" {
		now := clock(uc.Now)
		title := strings.TrimSpace(input.Title)
		if title == "" {
			title = strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		}
		id := input.VideoID
		if id == "" {
			id = domain.VideoID(newID(uc.NewID))
		}
		video = domain.VideoRecord{
			ID:         id,
			OwnerID:    input.OwnerID,
			Title:      title,
			SourcePath: path,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := uc.Videos.Create(ctx, video); err != nil {
			return RegisteredVideo{}, wrapRepo(err)
		}
	}

	have := make(map[domain.JobType]bool, len(jobs))
	for _, job := range jobs {
		have[job.Type] = true
	}
	for _, jobType := range domain.JobTypes {
		if have[jobType] {
			continue
		}
		job, err := uc.Enqueue.Execute(ctx, video.ID, jobType)
		if err != nil {
			return RegisteredVideo{}, err
		}
		jobs = append(jobs, job)
	}
	return RegisteredVideo{Video: video, Jobs: jobs}, nil
}

// existing loads a record left by an earlier attempt under id along with its
// jobs. A zero record means there is nothing to resume.
func (uc RegisterVideo) existing(ctx context.Context, id domain.VideoID, path string) (domain.VideoRecord, []domain.ProcessingJob, error) {
	if id == "" {
		return domain.VideoRecord{}, nil, nil
	}
	video, err := uc.Videos.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.VideoRecord{}, nil, nil
	}
	if err != nil {
		return domain.VideoRecord{}, nil, wrapRepo(err)
	}
	if video.SourcePath != path {
		return domain.VideoRecord{}, nil, invalidInput("video id is registered for another source")
	}
	jobs, err := uc.Enqueue.Jobs.ListByVideo(ctx, id)
	if err != nil {
		return domain.VideoRecord{}, nil, wrapRepo(err)
	}
	return video, jobs, nil
}
