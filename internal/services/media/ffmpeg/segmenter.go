package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"videostream/internal/domain"
	"videostream/internal/pipeline"
)

const segmentPattern = "segment_%03d.ts"

// Segmenter cuts a rendition into MPEG-TS segments of a fixed duration and
// writes the media manifest listing them.
type Segmenter struct {
	cfg Config
	run runFunc
}

func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults(), run: execRun}
}

func (s *Segmenter) Segment(ctx context.Context, rendition domain.RenditionArtifact, outDir string, segmentDuration float64) (domain.SegmentSet, error) {
	if segmentDuration <= 0 {
		return domain.SegmentSet{}, fmt.Errorf("%w: segment duration must be positive", domain.ErrSegmentationFailed)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.SegmentSet{}, fmt.Errorf("%w: %v", domain.ErrSegmentationFailed, err)
	}
	if err := clearSegments(outDir); err != nil {
		return domain.SegmentSet{}, fmt.Errorf("%w: %v", domain.ErrSegmentationFailed, err)
	}

	stderr, err := s.run(ctx, s.cfg.Binary, s.args(rendition, outDir, segmentDuration))
	if err != nil {
		return domain.SegmentSet{}, runErr(domain.ErrSegmentationFailed, err, stderr)
	}

	names, err := listSegments(outDir)
	if err != nil {
		return domain.SegmentSet{}, fmt.Errorf("%w: %v", domain.ErrSegmentationFailed, err)
	}
	if len(names) == 0 {
		return domain.SegmentSet{}, fmt.Errorf("%w: muxer produced no segments", domain.ErrSegmentationFailed)
	}

	durations := pipeline.FitDurations(pipeline.PlanSegments(rendition.Duration, segmentDuration), len(names), segmentDuration)
	manifest := filepath.Join(outDir, pipeline.MediaManifestName)
	if err := pipeline.WriteMediaManifest(manifest, names, durations, segmentDuration); err != nil {
		return domain.SegmentSet{}, fmt.Errorf("%w: %v", domain.ErrSegmentationFailed, err)
	}

	return domain.SegmentSet{
		Quality:         rendition.Quality,
		Segments:        names,
		Durations:       durations,
		SegmentDuration: segmentDuration,
		ManifestPath:    manifest,
	}, nil
}

// canCopy reports whether a rendition already has keyframes on every segment
// boundary. Converted tiers do when the converter used the same interval; the
// original source never does.
func (s *Segmenter) canCopy(rendition domain.RenditionArtifact, segmentDuration float64) bool {
	return rendition.Quality != domain.OriginalQuality && s.cfg.KeyframeInterval == segmentDuration
}

func (s *Segmenter) args(rendition domain.RenditionArtifact, outDir string, segmentDuration float64) []string {
	seconds := strconv.FormatFloat(segmentDuration, 'f', -1, 64)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", rendition.Path,
		"-map", "0:v:0",
		"-map", "0:a:0?",
	}
	if s.canCopy(rendition, segmentDuration) {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", s.cfg.Preset,
			"-crf", strconv.Itoa(s.cfg.CRF),
			"-pix_fmt", "yuv420p",
		)
		args = append(args, keyframeArgs(segmentDuration)...)
		args = append(args, "-c:a", "aac", "-b:a", s.cfg.AudioBitrate)
	}
	return append(args,
		"-f", "segment",
		"-segment_time", seconds,
		"-segment_format", "mpegts",
		filepath.Join(outDir, segmentPattern),
	)
}

func isSegmentFile(name string) bool {
	return strings.HasPrefix(name, "segment_") && strings.HasSuffix(name, ".ts")
}

// clearSegments removes segment files and the manifest left by a previous
// run.
func clearSegments(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isSegmentFile(e.Name()) || e.Name() == pipeline.MediaManifestName {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSegmentFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
