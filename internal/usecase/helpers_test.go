package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/pipeline"
	"videostream/internal/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// brokenJobs fails every call with the configured error.
type brokenJobs struct {
	ports.JobRepository
	err error
}

func (b brokenJobs) Create(context.Context, domain.ProcessingJob) error { return b.err }
func (b brokenJobs) Get(context.Context, domain.JobID) (domain.ProcessingJob, error) {
	return domain.ProcessingJob{}, b.err
}

// flakyJobs refuses to create jobs of failType until it is cleared.
type flakyJobs struct {
	*memory.JobStore
	failType domain.JobType
}

func (f *flakyJobs) Create(ctx context.Context, job domain.ProcessingJob) error {
	if job.Type == f.failType {
		return errors.New("write concern timeout")
	}
	return f.JobStore.Create(ctx, job)
}

type brokenVideos struct {
	ports.VideoRepository
}

func (brokenVideos) Get(context.Context, domain.VideoID) (domain.VideoRecord, error) {
	return domain.VideoRecord{}, errors.New("connection refused")
}

func seedVideo(t *testing.T, videos *memory.VideoStore, v domain.VideoRecord) {
	t.Helper()
	if v.CreatedAt.IsZero() {
		v.CreatedAt, v.UpdatedAt = fixedNow, fixedNow
	}
	if err := videos.Create(context.Background(), v); err != nil {
		t.Fatalf("seed video: %v", err)
	}
}

// writeSegments lays out a media manifest with count segments for quality.
func writeSegments(t *testing.T, layout pipeline.Layout, id domain.VideoID, quality string, duration, segDur float64) []string {
	t.Helper()
	plan := pipeline.PlanSegments(duration, segDur)
	names := make([]string, len(plan))
	for i := range plan {
		names[i] = fmt.Sprintf("segment_%03d.ts", i)
	}
	path := layout.MediaManifestPath(id, quality)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := pipeline.WriteMediaManifest(path, names, plan, segDur); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return names
}
