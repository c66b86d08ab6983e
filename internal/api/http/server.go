package apihttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"videostream/internal/domain"
	domainports "videostream/internal/domain/ports"
	"videostream/internal/pipeline"
	"videostream/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ResolveSegmentsUseCase interface {
	Execute(ctx context.Context, videoID domain.VideoID, position float64, quality string) (usecase.SegmentInfo, error)
}

type RegisterVideoUseCase interface {
	Execute(ctx context.Context, input usecase.RegisterVideoInput) (usecase.RegisteredVideo, error)
}

type EnqueueJobUseCase interface {
	Execute(ctx context.Context, videoID domain.VideoID, jobType domain.JobType) (domain.ProcessingJob, error)
}

type GetJobUseCase interface {
	Execute(ctx context.Context, id domain.JobID) (domain.ProcessingJob, error)
}

type ListJobsUseCase interface {
	Execute(ctx context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error)
}

type SyncWatchStateUseCase interface {
	Execute(ctx context.Context, userID string, videoID domain.VideoID, upd usecase.WatchUpdate) (domain.WatchState, error)
	Current(ctx context.Context, userID string, videoID domain.VideoID) (domain.WatchState, error)
}

type UploadService interface {
	Begin(ctx context.Context, userID string, in usecase.BeginUploadInput) (usecase.UploadSession, error)
	AppendChunk(ctx context.Context, userID, uploadID string, start, length int64, r io.Reader) (usecase.ChunkResult, error)
	Get(userID, uploadID string) (usecase.UploadSession, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	resolveSegments ResolveSegmentsUseCase
	registerVideo   RegisterVideoUseCase
	enqueueJob      EnqueueJobUseCase
	getJob          GetJobUseCase
	listJobs        ListJobsUseCase
	syncWatch       SyncWatchStateUseCase
	uploads         UploadService
	videos          domainports.VideoRepository
	broker          domainports.EventBroker
	layout          *pipeline.Layout
	healthChecks    map[string]HealthCheck
	allowedOrigins  []string
	rateRPS         float64
	rateBurst       int
	logger          *slog.Logger
	handler         http.Handler
	wsHub           *wsHub
}

type ServerOption func(*Server)

func WithRegisterVideo(uc RegisterVideoUseCase) ServerOption {
	return func(s *Server) {
		s.registerVideo = uc
	}
}

func WithEnqueueJob(uc EnqueueJobUseCase) ServerOption {
	return func(s *Server) {
		s.enqueueJob = uc
	}
}

func WithGetJob(uc GetJobUseCase) ServerOption {
	return func(s *Server) {
		s.getJob = uc
	}
}

func WithListJobs(uc ListJobsUseCase) ServerOption {
	return func(s *Server) {
		s.listJobs = uc
	}
}

func WithSyncWatchState(uc SyncWatchStateUseCase) ServerOption {
	return func(s *Server) {
		s.syncWatch = uc
	}
}

func WithUploads(svc UploadService) ServerOption {
	return func(s *Server) {
		s.uploads = svc
	}
}

func WithVideos(repo domainports.VideoRepository) ServerOption {
	return func(s *Server) {
		s.videos = repo
	}
}

// WithBroker enables the WebSocket endpoints, which relay broker channels to
// clients.
func WithBroker(broker domainports.EventBroker) ServerOption {
	return func(s *Server) {
		s.broker = broker
	}
}

// WithMedia serves pipeline output (manifests, segments, thumbnails) from
// the layout's media dir.
func WithMedia(layout pipeline.Layout) ServerOption {
	return func(s *Server) {
		s.layout = &layout
	}
}

func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		if s.healthChecks == nil {
			s.healthChecks = make(map[string]HealthCheck)
		}
		s.healthChecks[name] = check
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(resolve ResolveSegmentsUseCase, opts ...ServerOption) *Server {
	s := &Server{
		resolveSegments: resolve,
		rateRPS:         100,
		rateBurst:       200,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", s.handleRegisterVideo)
	mux.HandleFunc("GET /videos/{id}", s.handleGetVideo)
	mux.HandleFunc("POST /videos/{id}/jobs", s.handleEnqueueJob)
	mux.HandleFunc("GET /videos/{id}/jobs", s.handleListJobs)
	mux.HandleFunc("GET /videos/{id}/segments", s.handleSegments)
	mux.HandleFunc("GET /videos/{id}/master.m3u8", s.handleMasterManifest)
	mux.HandleFunc("GET /videos/{id}/thumbnail.jpg", s.handleThumbnail)
	mux.HandleFunc("GET /videos/{id}/segments/{quality}/{file}", s.handleSegmentFile)
	mux.HandleFunc("GET /videos/{id}/watch", s.handleGetWatchState)
	mux.HandleFunc("POST /videos/{id}/watch", s.handleUpdateWatchState)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /uploads", s.handleBeginUpload)
	mux.HandleFunc("PUT /uploads/{id}", s.handleUploadChunk)
	mux.HandleFunc("GET /uploads/{id}", s.handleGetUpload)
	mux.HandleFunc("GET /ws/uploads/{id}", s.handleUploadWS)
	mux.HandleFunc("GET /ws/watch/{id}", s.handleWatchWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "videostream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws/")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, check := range s.healthChecks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
