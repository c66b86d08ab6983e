package domain

import "time"

type UploadStatus string

const (
	UploadInProgress UploadStatus = "uploading"
	UploadCompleted  UploadStatus = "completed"
)

// UploadProgress is a point-in-time snapshot of a chunked upload. It is never
// persisted.
type UploadProgress struct {
	UserID            string       `json:"-"`
	UploadID          string       `json:"uploadId"`
	Transferred       int64        `json:"transferred"`
	Total             int64        `json:"total"`
	Progress          float64      `json:"progress"`
	Speed             float64      `json:"speed"`
	TotalDuration     float64      `json:"total_duration"`
	RemainingDuration float64      `json:"remaining_duration"`
	RemainingSize     int64        `json:"remaining_size"`
	Status            UploadStatus `json:"status"`
	VideoID           VideoID      `json:"video_id,omitempty"`
}

// ComputeUploadProgress derives the reported metrics from the raw counters.
// Zero elapsed time or zero speed yields zero rates instead of dividing by
// zero.
func ComputeUploadProgress(transferred, total int64, elapsed time.Duration) UploadProgress {
	p := UploadProgress{
		Transferred: transferred,
		Total:       total,
		Status:      UploadInProgress,
	}
	if total > 0 {
		p.Progress = float64(transferred) / float64(total) * 100
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.Speed = float64(transferred) / secs
	}
	if p.Speed > 0 {
		p.TotalDuration = float64(total) / p.Speed
	}
	p.RemainingDuration = p.TotalDuration * (1 - p.Progress/100)
	p.RemainingSize = total - transferred
	if p.RemainingSize < 0 {
		p.RemainingSize = 0
	}
	return p
}

// CompletedUploadProgress is the terminal event sent once after the final
// chunk.
func CompletedUploadProgress(total int64, elapsed time.Duration, videoID VideoID) UploadProgress {
	p := ComputeUploadProgress(total, total, elapsed)
	p.Progress = 100
	p.RemainingDuration = 0
	p.RemainingSize = 0
	p.Status = UploadCompleted
	p.VideoID = videoID
	return p
}
