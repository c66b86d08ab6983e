package usecase

import (
	"context"
	"errors"
	"fmt"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/metrics"
	"videostream/internal/pipeline"
)

// AutoQuality lets the resolver pick the rendition.
const AutoQuality = "auto"

type SegmentInfo struct {
	Type         string         `json:"type"`
	Segments     []string       `json:"segments"`
	StartOffset  float64        `json:"start_offset"`
	SegmentIndex int            `json:"segment_index"`
	Quality      string         `json:"quality"`
	VideoID      domain.VideoID `json:"video_id"`
}

// ResolveSegments maps a playback position to the segments a player should
// fetch next. It keeps no state between calls.
type ResolveSegments struct {
	Videos          ports.VideoRepository
	Layout          pipeline.Layout
	SegmentDuration float64
	BaseURL         string
}

func (uc ResolveSegments) Execute(ctx context.Context, videoID domain.VideoID, position float64, quality string) (SegmentInfo, error) {
	info, err := uc.resolve(ctx, videoID, position, quality)
	metrics.SegmentLookupsTotal.WithLabelValues(lookupOutcome(err)).Inc()
	return info, err
}

func (uc ResolveSegments) resolve(ctx context.Context, videoID domain.VideoID, position float64, quality string) (SegmentInfo, error) {
	index, offset, err := pipeline.LocateSegment(position, uc.SegmentDuration)
	if err != nil {
		return SegmentInfo{}, err
	}

	video, err := uc.Videos.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SegmentInfo{}, fmt.Errorf("%w: unknown video %s", domain.ErrManifestNotFound, videoID)
		}
		return SegmentInfo{}, wrapRepo(err)
	}

	dir, label := ResolveRendition(video, quality)
	segments, err := pipeline.ReadMediaManifest(uc.Layout.MediaManifestPath(videoID, dir))
	if err != nil {
		return SegmentInfo{}, err
	}
	if index >= len(segments) {
		return SegmentInfo{}, fmt.Errorf("%w: segment %d of %d", domain.ErrPositionOutOfRange, index, len(segments))
	}

	urls := make([]string, 0, len(segments)-index)
	for _, name := range segments[index:] {
		urls = append(urls, pipeline.SegmentURL(uc.BaseURL, videoID, dir, name))
	}
	return SegmentInfo{
		Type:         "segment_info",
		Segments:     urls,
		StartOffset:  offset,
		SegmentIndex: index,
		Quality:      label,
		VideoID:      videoID,
	}, nil
}

// ResolveRendition returns the segment directory to read and the quality
// label to report. Anything not in the ladder, "auto", "original" and the
// native label all select the original rendition.
func ResolveRendition(video domain.VideoRecord, requested string) (dir, label string) {
	native := video.NativeQuality
	if native == "" {
		native = domain.OriginalQuality
	}
	if requested == "" || requested == AutoQuality || requested == domain.OriginalQuality ||
		requested == video.NativeQuality || !video.Qualities.Contains(requested) {
		return domain.OriginalQuality, native
	}
	return requested, requested
}

func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, domain.ErrManifestNotFound):
		return "manifest_not_found"
	case errors.Is(err, domain.ErrPositionOutOfRange):
		return "out_of_range"
	default:
		return "error"
	}
}
