package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/events"
)

const defaultPublishTimeout = 2 * time.Second

// UploadProgressMessage is the payload pushed to upload subscribers.
type UploadProgressMessage struct {
	Type string `json:"type"`
	domain.UploadProgress
	SpeedHuman         string `json:"speed_human"`
	RemainingSizeHuman string `json:"remaining_size_human"`
}

func NewUploadProgressMessage(p domain.UploadProgress) UploadProgressMessage {
	p.Progress = math.Round(p.Progress*100) / 100
	return UploadProgressMessage{
		Type:               "upload_progress",
		UploadProgress:     p,
		SpeedHuman:         humanize.Bytes(uint64(math.Max(p.Speed, 0))) + "/s",
		RemainingSizeHuman: humanize.Bytes(uint64(max(p.RemainingSize, 0))),
	}
}

// ProgressReporter pushes upload progress to the uploader's channel. Errors
// are logged and never returned: a lost progress event must not fail the
// upload.
type ProgressReporter struct {
	Broker  ports.EventBroker
	Logger  *slog.Logger
	Timeout time.Duration
}

func (r ProgressReporter) Report(ctx context.Context, p domain.UploadProgress) {
	if r.Broker == nil {
		return
	}
	payload, err := json.Marshal(NewUploadProgressMessage(p))
	if err != nil {
		r.logger().Warn("upload progress: encode failed", slog.String("error", err.Error()))
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := r.Broker.Publish(pubCtx, events.UploadChannel(p.UserID, p.UploadID), payload); err != nil {
		r.logger().Warn("upload progress: publish failed",
			slog.String("uploadId", p.UploadID),
			slog.String("error", err.Error()))
	}
}

func (r ProgressReporter) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
