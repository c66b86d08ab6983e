package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"videostream/internal/domain"
)

type fakeProber struct {
	src   domain.SourceVideo
	err   error
	calls int
}

func (f *fakeProber) Probe(_ context.Context, path string) (domain.SourceVideo, error) {
	f.calls++
	if f.err != nil {
		return domain.SourceVideo{}, f.err
	}
	src := f.src
	if src.Path == "" {
		src.Path = path
	}
	return src, nil
}

type fakeVideos struct {
	mu      sync.Mutex
	records map[domain.VideoID]domain.VideoRecord
	patches []domain.VideoPatch
}

func newFakeVideos(records ...domain.VideoRecord) *fakeVideos {
	f := &fakeVideos{records: make(map[domain.VideoID]domain.VideoRecord)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeVideos) Create(_ context.Context, v domain.VideoRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[v.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.records[v.ID] = v
	return nil
}

func (f *fakeVideos) Get(_ context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[id]
	if !ok {
		return domain.VideoRecord{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeVideos) Patch(_ context.Context, id domain.VideoID, patch domain.VideoPatch, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	v = patch.Apply(v)
	v.UpdatedAt = now
	f.records[id] = v
	f.patches = append(f.patches, patch)
	return nil
}

// fakeConverter writes a placeholder file per quality and can be told to fail
// on one of them.
type fakeConverter struct {
	failOn    string
	converted []string
}

func (f *fakeConverter) Convert(_ context.Context, src domain.SourceVideo, quality, outDir string) (domain.RenditionArtifact, error) {
	if quality == f.failOn {
		return domain.RenditionArtifact{}, fmt.Errorf("%w: encoder exited with status 1", domain.ErrConversionFailed)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.RenditionArtifact{}, err
	}
	path := filepath.Join(outDir, quality+".mp4")
	if err := os.WriteFile(path, []byte(quality), 0o644); err != nil {
		return domain.RenditionArtifact{}, err
	}
	f.converted = append(f.converted, quality)
	spec := domain.DefaultQualityPolicy().Spec(quality)
	return domain.RenditionArtifact{
		Quality:    quality,
		Path:       path,
		Bitrate:    spec.Bitrate,
		Resolution: spec.Resolution(),
		Duration:   src.Duration,
	}, nil
}

// fakeSegmenter follows the segment plan without running an encoder.
type fakeSegmenter struct {
	failOn    string
	segmented []string
}

func (f *fakeSegmenter) Segment(_ context.Context, r domain.RenditionArtifact, outDir string, segmentDuration float64) (domain.SegmentSet, error) {
	if r.Quality == f.failOn {
		return domain.SegmentSet{}, fmt.Errorf("%w: muxer failed", domain.ErrSegmentationFailed)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.SegmentSet{}, err
	}
	plan := PlanSegments(r.Duration, segmentDuration)
	names := make([]string, len(plan))
	for i := range plan {
		names[i] = fmt.Sprintf("segment_%03d.ts", i)
	}
	manifest := filepath.Join(outDir, MediaManifestName)
	if err := WriteMediaManifest(manifest, names, plan, segmentDuration); err != nil {
		return domain.SegmentSet{}, err
	}
	f.segmented = append(f.segmented, r.Quality)
	return domain.SegmentSet{
		Quality:         r.Quality,
		Segments:        names,
		Durations:       plan,
		SegmentDuration: segmentDuration,
		ManifestPath:    manifest,
	}, nil
}

type fakeExtractor struct {
	at  float64
	out string
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _, out string, at float64) error {
	if f.err != nil {
		return f.err
	}
	f.at = at
	f.out = out
	return os.WriteFile(out, []byte("jpg"), 0o644)
}
