package usecase

import (
	"context"
	"log/slog"
	"time"

	"videostream/internal/domain/ports"
	"videostream/internal/metrics"
)

// RecoverStaleJobs marks PROCESSING jobs that outlived Timeout as FAILED, for
// workers that died mid-job. Jobs are never re-queued.
type RecoverStaleJobs struct {
	Jobs     ports.JobRepository
	Timeout  time.Duration
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Run sweeps on every tick until ctx is done. A zero Timeout disables it.
func (uc RecoverStaleJobs) Run(ctx context.Context) error {
	if uc.Timeout <= 0 {
		return nil
	}
	interval := uc.Interval
	if interval <= 0 {
		interval = uc.Timeout / 4
		if interval < time.Second {
			interval = time.Second
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			uc.Sweep(ctx)
		}
	}
}

// Sweep runs one recovery pass and returns how many jobs it failed.
func (uc RecoverStaleJobs) Sweep(ctx context.Context) int {
	now := clock(uc.Now)
	stale, err := uc.Jobs.ListStale(ctx, now.Add(-uc.Timeout))
	if err != nil {
		uc.logger().Warn("stale jobs: list failed", slog.String("error", err.Error()))
		return 0
	}

	recovered := 0
	for _, job := range stale {
		msg := "stale: worker did not finish within " + uc.Timeout.String()
		if err := uc.Jobs.Fail(ctx, job.ID, msg, now); err != nil {
			// The worker may have finished between list and fail.
			uc.logger().Debug("stale jobs: fail skipped",
				slog.String("jobId", string(job.ID)),
				slog.String("error", err.Error()))
			continue
		}
		recovered++
		metrics.JobsRecoveredTotal.Inc()
		uc.logger().Warn("stale job marked failed",
			slog.String("jobId", string(job.ID)),
			slog.String("worker", job.WorkerID),
			slog.String("type", string(job.Type)))
	}
	return recovered
}

func (uc RecoverStaleJobs) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
