package domain

import (
	"errors"
	"time"
)

type JobID string

type JobType string

const (
	JobThumbnail JobType = "THUMBNAIL"
	JobTranscode JobType = "TRANSCODE"
)

// JobTypes lists every job type that has its own queue.
var JobTypes = []JobType{JobThumbnail, JobTranscode}

func ParseJobType(raw string) (JobType, error) {
	switch JobType(raw) {
	case JobThumbnail:
		return JobThumbnail, nil
	case JobTranscode:
		return JobTranscode, nil
	default:
		return "", ErrInvalidJobType
	}
}

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// PENDING -> PROCESSING -> {COMPLETED | FAILED}; terminal states are final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

type ProcessingJob struct {
	ID         JobID      `json:"id"`
	VideoID    VideoID    `json:"videoId"`
	Type       JobType    `json:"type"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	WorkerID   string     `json:"workerId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Validate checks domain invariants for ProcessingJob.
func (j ProcessingJob) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if j.VideoID == "" {
		return errors.New("video id is required")
	}
	if _, err := ParseJobType(string(j.Type)); err != nil {
		return err
	}
	switch j.Status {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
	case "":
		return errors.New("status is required")
	default:
		return errors.New("invalid status: " + string(j.Status))
	}
	if j.Status == JobFailed && j.Error == "" {
		return errors.New("failed job must carry an error message")
	}
	return nil
}
