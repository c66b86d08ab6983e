package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
)

const maxThumbnailOffset = 10.0

// ThumbnailOffset picks the frame to grab: 10% into the video, never later
// than ten seconds.
func ThumbnailOffset(duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	at := duration * 0.1
	if at > maxThumbnailOffset {
		at = maxThumbnailOffset
	}
	return at
}

// ThumbnailHandler runs one THUMBNAIL job.
type ThumbnailHandler struct {
	Videos    ports.VideoRepository
	Prober    ports.MediaProber
	Extractor ports.ThumbnailExtractor
	Layout    Layout
	Limiter   *EncodeLimiter
	Logger    *slog.Logger
	Now       func() time.Time
}

func (h ThumbnailHandler) Handle(ctx context.Context, job domain.ProcessingJob) error {
	video, err := h.Videos.Get(ctx, job.VideoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}

	var src domain.SourceVideo
	err = runStage(ctx, "probe", func(ctx context.Context) error {
		var err error
		src, err = h.Prober.Probe(ctx, video.SourcePath)
		return err
	}, attribute.String("video.id", string(video.ID)))
	if err != nil {
		return err
	}

	out := h.Layout.ThumbnailPath(video.ID)
	if err := os.MkdirAll(h.Layout.VideoDir(video.ID), 0o755); err != nil {
		return err
	}
	err = h.Limiter.Do(ctx, func() error {
		return runStage(ctx, "thumbnail", func(ctx context.Context) error {
			return h.Extractor.Extract(ctx, video.SourcePath, out, ThumbnailOffset(src.Duration))
		}, attribute.String("video.id", string(video.ID)))
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now().UTC()
	}
	if err := h.Videos.Patch(ctx, video.ID, domain.VideoPatch{ThumbnailPath: &out}, now); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("thumbnail ready",
		slog.String("jobId", string(job.ID)),
		slog.String("videoId", string(video.ID)),
		slog.String("path", out),
	)
	return nil
}
