package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/metrics"
)

const finishTimeout = 10 * time.Second

var tracer = otel.Tracer("videostream/worker")

// Handler runs one claimed job to completion.
type Handler interface {
	Handle(ctx context.Context, job domain.ProcessingJob) error
}

type Handlers struct {
	Transcode Handler
	Thumbnail Handler
}

type Config struct {
	// Workers is the number of loops per job type. Types with zero loops
	// are not consumed by this process.
	Workers      map[domain.JobType]int
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// Pool runs long-lived claim loops, one group per job type. A job that fails
// or panics is recorded as FAILED; the loop then moves on.
type Pool struct {
	jobs     ports.JobRepository
	handlers Handlers
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	instance string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewPool(jobs ports.JobRepository, handlers Handlers, cfg Config, logger *slog.Logger) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:     jobs,
		handlers: handlers,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		instance: uuid.NewString()[:8],
	}
}

// Start launches the loops and returns immediately. Calling Start on a
// running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for _, jobType := range domain.JobTypes {
		n := p.cfg.Workers[jobType]
		for i := 0; i < n; i++ {
			workerID := fmt.Sprintf("%s-%s-%d", p.instance, strings.ToLower(string(jobType)), i+1)
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.loop(ctx, jobType, workerID)
			}()
		}
		if n > 0 {
			p.logger.Info("worker loops started", slog.String("type", string(jobType)), slog.Int("count", n))
		}
	}
}

// Stop cancels the loops and waits for in-flight jobs to be recorded.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker loops stopped")
}

// Run starts the pool and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Pool) loop(ctx context.Context, jobType domain.JobType, workerID string) {
	backoff := p.cfg.PollInterval
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.processNext(ctx, jobType, workerID)
		if processed {
			backoff = p.cfg.PollInterval
			continue
		}
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("worker: claim failed",
				slog.String("worker", workerID),
				slog.String("error", err.Error()))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, p.cfg.MaxBackoff)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// processNext claims and runs at most one job. It reports whether a job was
// claimed.
func (p *Pool) processNext(ctx context.Context, jobType domain.JobType, workerID string) (bool, error) {
	job, err := p.jobs.ClaimNext(ctx, jobType, workerID, p.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	log := p.logger.With(
		slog.String("worker", workerID),
		slog.String("jobId", string(job.ID)),
		slog.String("videoId", string(job.VideoID)),
		slog.String("type", string(job.Type)),
	)
	log.Info("job started")
	start := time.Now()

	jobCtx, span := tracer.Start(ctx, "job."+strings.ToLower(string(job.Type)),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", string(job.ID)),
			attribute.String("video.id", string(job.VideoID)),
			attribute.String("worker.id", workerID),
		))
	metrics.JobsInFlight.WithLabelValues(string(job.Type)).Inc()
	runErr := p.run(jobCtx, job)
	metrics.JobsInFlight.WithLabelValues(string(job.Type)).Dec()
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()

	// The job outcome is recorded even when shutdown cancelled ctx.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if runErr != nil {
		log.Error("job failed",
			slog.String("error", runErr.Error()),
			slog.Duration("elapsed", time.Since(start)))
		if err := p.jobs.Fail(finishCtx, job.ID, runErr.Error(), p.now()); err != nil {
			log.Error("job: record failure", slog.String("error", err.Error()))
		}
		metrics.JobsFinishedTotal.WithLabelValues(string(job.Type), string(domain.JobFailed)).Inc()
		return true, nil
	}

	if err := p.jobs.Complete(finishCtx, job.ID, p.now()); err != nil {
		log.Error("job: record completion", slog.String("error", err.Error()))
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(job.Type), string(domain.JobCompleted)).Inc()
	log.Info("job completed", slog.Duration("elapsed", time.Since(start)))
	return true, nil
}

// run dispatches the job and turns a handler panic into an error.
func (p *Pool) run(ctx context.Context, job domain.ProcessingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panic",
				slog.String("jobId", string(job.ID)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	handler, err := p.handlerFor(job.Type)
	if err != nil {
		return err
	}
	return handler.Handle(ctx, job)
}

func (p *Pool) handlerFor(jobType domain.JobType) (Handler, error) {
	var h Handler
	switch jobType {
	case domain.JobTranscode:
		h = p.handlers.Transcode
	case domain.JobThumbnail:
		h = p.handlers.Thumbnail
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, jobType)
	}
	if h == nil {
		return nil, fmt.Errorf("no handler registered for %s jobs", jobType)
	}
	return h, nil
}
