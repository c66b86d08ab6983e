package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"videostream/internal/domain"
	"videostream/internal/storage/memory"
)

func TestRecoverStaleJobsSweep(t *testing.T) {
	jobs := memory.NewJobStore()
	ctx := context.Background()
	for i, id := range []domain.JobID{"old", "fresh", "queued"} {
		created := fixedNow.Add(-2*time.Hour + time.Duration(i)*time.Second)
		job := domain.ProcessingJob{ID: id, VideoID: domain.VideoID("v-" + id), Type: domain.JobTranscode, Status: domain.JobPending, CreatedAt: created, UpdatedAt: created}
		if err := jobs.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := jobs.ClaimNext(ctx, domain.JobTranscode, "w1", fixedNow.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.ClaimNext(ctx, domain.JobTranscode, "w2", fixedNow.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	uc := RecoverStaleJobs{Jobs: jobs, Timeout: 30 * time.Minute, Logger: testLogger(), Now: func() time.Time { return fixedNow }}
	if n := uc.Sweep(ctx); n != 1 {
		t.Fatalf("recovered %d jobs, want 1", n)
	}

	old, _ := jobs.Get(ctx, "old")
	if old.Status != domain.JobFailed || !strings.HasPrefix(old.Error, "stale:") {
		t.Fatalf("stale job not failed: %+v", old)
	}
	fresh, _ := jobs.Get(ctx, "fresh")
	if fresh.Status != domain.JobProcessing {
		t.Fatalf("fresh job touched: %+v", fresh)
	}
	queued, _ := jobs.Get(ctx, "queued")
	if queued.Status != domain.JobPending {
		t.Fatalf("pending job touched: %+v", queued)
	}

	if n := uc.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep recovered %d jobs", n)
	}
}

func TestRecoverStaleJobsRunDisabled(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		done <- RecoverStaleJobs{Jobs: memory.NewJobStore()}.Run(context.Background())
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run with zero timeout did not return")
	}
}

func TestRecoverStaleJobsRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RecoverStaleJobs{Jobs: memory.NewJobStore(), Timeout: time.Minute, Interval: 10 * time.Millisecond, Logger: testLogger()}.Run(ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
