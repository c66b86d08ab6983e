package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
)

// TranscodeHandler runs the full pipeline for one TRANSCODE job: probe the
// source, segment the original, convert and segment every lower tier, then
// write the master manifest. The first failing stage aborts the job; output
// already written for earlier qualities is left on disk.
type TranscodeHandler struct {
	Videos          ports.VideoRepository
	Resolver        QualityResolver
	Converter       ports.RenditionConverter
	Segmenter       ports.Segmenter
	Layout          Layout
	Policy          domain.QualityPolicy
	SegmentDuration float64
	Limiter         *EncodeLimiter
	Logger          *slog.Logger
	Now             func() time.Time
}

func (h TranscodeHandler) Handle(ctx context.Context, job domain.ProcessingJob) error {
	logger := h.logger().With(
		slog.String("jobId", string(job.ID)),
		slog.String("videoId", string(job.VideoID)),
	)

	video, err := h.Videos.Get(ctx, job.VideoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}

	var (
		src    domain.SourceVideo
		ladder domain.QualityLadder
	)
	err = runStage(ctx, "probe", func(ctx context.Context) error {
		var err error
		src, ladder, err = h.Resolver.Resolve(ctx, video.SourcePath)
		return err
	}, attribute.String("video.id", string(video.ID)))
	if err != nil {
		return err
	}
	logger.Info("source probed",
		slog.String("native", src.NativeQuality),
		slog.String("resolution", src.Resolution()),
		slog.Float64("duration", src.Duration),
		slog.Any("ladder", []string(ladder)),
	)

	// Publish the ladder early so playback of finished renditions can start
	// before the whole job is done.
	if err := h.Videos.Patch(ctx, video.ID, domain.VideoPatch{
		NativeQuality: &src.NativeQuality,
		Qualities:     ladder,
		Duration:      &src.Duration,
	}, h.now()); err != nil {
		return fmt.Errorf("save media info: %w", err)
	}

	original := h.originalArtifact(src)
	variants := make([]domain.VariantEntry, 0, len(ladder))
	for _, quality := range ladder {
		artifact := original
		if quality != domain.OriginalQuality {
			artifact, err = h.convert(ctx, video.ID, src, quality)
			if err != nil {
				return fmt.Errorf("quality %s: %w", quality, err)
			}
		}

		set, err := h.segment(ctx, video.ID, artifact)
		if err != nil {
			return fmt.Errorf("quality %s: %w", quality, err)
		}

		variants = append(variants, domain.VariantEntry{
			Quality:      quality,
			ManifestPath: set.ManifestPath,
			Bandwidth:    artifact.Bitrate,
			Resolution:   artifact.Resolution,
		})
		logger.Info("rendition ready",
			slog.String("quality", quality),
			slog.Int("segments", len(set.Segments)),
		)
	}

	var master domain.MasterManifest
	err = runStage(ctx, "compose", func(context.Context) error {
		var err error
		master, err = ComposeMaster(variants, h.Layout.VideoDir(video.ID))
		return err
	}, attribute.String("video.id", string(video.ID)))
	if err != nil {
		return fmt.Errorf("compose master manifest: %w", err)
	}

	if err := h.Videos.Patch(ctx, video.ID, domain.VideoPatch{MasterManifestPath: &master.Path}, h.now()); err != nil {
		return fmt.Errorf("save master manifest: %w", err)
	}
	logger.Info("transcode finished", slog.String("master", master.Path), slog.Int("variants", len(variants)))
	return nil
}

func (h TranscodeHandler) originalArtifact(src domain.SourceVideo) domain.RenditionArtifact {
	spec := h.Policy.OriginalSpec(src)
	return domain.RenditionArtifact{
		Quality:    domain.OriginalQuality,
		Path:       src.Path,
		Bitrate:    spec.Bitrate,
		Resolution: spec.Resolution(),
		Duration:   src.Duration,
	}
}

func (h TranscodeHandler) convert(ctx context.Context, id domain.VideoID, src domain.SourceVideo, quality string) (domain.RenditionArtifact, error) {
	var artifact domain.RenditionArtifact
	err := h.Limiter.Do(ctx, func() error {
		return runStage(ctx, "convert", func(ctx context.Context) error {
			var err error
			artifact, err = h.Converter.Convert(ctx, src, quality, h.Layout.RenditionDir(id, quality))
			return err
		}, attribute.String("video.id", string(id)), attribute.String("quality", quality))
	})
	return artifact, err
}

func (h TranscodeHandler) segment(ctx context.Context, id domain.VideoID, artifact domain.RenditionArtifact) (domain.SegmentSet, error) {
	var set domain.SegmentSet
	err := h.Limiter.Do(ctx, func() error {
		return runStage(ctx, "segment", func(ctx context.Context) error {
			var err error
			set, err = h.Segmenter.Segment(ctx, artifact, h.Layout.SegmentDir(id, artifact.Quality), h.SegmentDuration)
			return err
		}, attribute.String("video.id", string(id)), attribute.String("quality", artifact.Quality))
	})
	return set, err
}

func (h TranscodeHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h TranscodeHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}
