package ports

import (
	"context"

	"videostream/internal/domain"
)

type MediaProber interface {
	Probe(ctx context.Context, path string) (domain.SourceVideo, error)
}

// RenditionConverter re-encodes a source into one quality tier under outDir.
// The source file is never modified.
type RenditionConverter interface {
	Convert(ctx context.Context, src domain.SourceVideo, quality, outDir string) (domain.RenditionArtifact, error)
}

// Segmenter cuts a rendition into fixed-duration segments plus a media
// manifest inside outDir, replacing whatever a previous run left there.
type Segmenter interface {
	Segment(ctx context.Context, rendition domain.RenditionArtifact, outDir string, duration float64) (domain.SegmentSet, error)
}

type ThumbnailExtractor interface {
	Extract(ctx context.Context, inputPath, outputPath string, at float64) error
}
