package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	apihttp "videostream/internal/api/http"
	"videostream/internal/app"
	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	eventsmemory "videostream/internal/events/memory"
	eventsredis "videostream/internal/events/redis"
	"videostream/internal/metrics"
	"videostream/internal/pipeline"
	mongorepo "videostream/internal/repository/mongo"
	"videostream/internal/services/media/ffmpeg"
	"videostream/internal/services/media/ffprobe"
	"videostream/internal/storage/memory"
	"videostream/internal/telemetry"
	"videostream/internal/usecase"
	"videostream/internal/worker"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

type stores struct {
	videos ports.VideoRepository
	jobs   ports.JobRepository
	watch  ports.WatchStateRepository
	client *mongo.Client
}

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "videostream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "videostream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("storageMode", cfg.StorageMode),
		slog.String("mediaDir", cfg.MediaDir),
		slog.String("uploadDir", cfg.UploadDir),
		slog.Duration("uploadIdleTTL", cfg.UploadIdleTTL),
		slog.Float64("segmentDuration", cfg.SegmentDuration),
		slog.Int("transcodeWorkers", cfg.TranscodeWorkers),
		slog.Int("thumbnailWorkers", cfg.ThumbnailWorkers),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	broker, brokerHealth, closeBroker := buildBroker(rootCtx, cfg, logger)

	layout := pipeline.Layout{MediaDir: cfg.MediaDir}
	policy := domain.DefaultQualityPolicy()
	encodeCfg := ffmpeg.Config{
		Binary:           cfg.FFMPEGPath,
		Preset:           cfg.EncodePreset,
		CRF:              cfg.EncodeCRF,
		AudioBitrate:     cfg.EncodeAudioBitrate,
		Policy:           policy,
		KeyframeInterval: cfg.SegmentDuration,
	}
	prober := ffprobe.New(cfg.FFProbePath)
	limiter := pipeline.NewEncodeLimiter(int64(cfg.MaxConcurrentEncodes))

	pool := worker.NewPool(st.jobs, worker.Handlers{
		Transcode: pipeline.TranscodeHandler{
			Videos:          st.videos,
			Resolver:        pipeline.QualityResolver{Prober: prober},
			Converter:       ffmpeg.NewConverter(encodeCfg),
			Segmenter:       ffmpeg.NewSegmenter(encodeCfg),
			Layout:          layout,
			Policy:          policy,
			SegmentDuration: cfg.SegmentDuration,
			Limiter:         limiter,
			Logger:          logger,
		},
		Thumbnail: pipeline.ThumbnailHandler{
			Videos:    st.videos,
			Prober:    prober,
			Extractor: ffmpeg.NewThumbnailer(encodeCfg),
			Layout:    layout,
			Limiter:   limiter,
			Logger:    logger,
		},
	}, worker.Config{
		Workers: map[domain.JobType]int{
			domain.JobTranscode: cfg.TranscodeWorkers,
			domain.JobThumbnail: cfg.ThumbnailWorkers,
		},
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,
	}, logger)

	recoverUC := usecase.RecoverStaleJobs{Jobs: st.jobs, Timeout: cfg.StaleJobTimeout, Logger: logger}

	enqueueUC := usecase.EnqueueJob{Jobs: st.jobs, Videos: st.videos}
	registerUC := usecase.RegisterVideo{Videos: st.videos, Enqueue: enqueueUC}
	resolveUC := usecase.ResolveSegments{
		Videos:          st.videos,
		Layout:          layout,
		SegmentDuration: cfg.SegmentDuration,
		BaseURL:         cfg.PublicBaseURL,
	}
	uploads := &usecase.Uploads{
		Dir:          cfg.UploadDir,
		Register:     registerUC,
		Progress:     usecase.ProgressReporter{Broker: broker, Logger: logger},
		IdleTTL:      cfg.UploadIdleTTL,
		CompletedTTL: cfg.UploadCompletedTTL,
		Logger:       logger,
	}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithRegisterVideo(registerUC),
		apihttp.WithEnqueueJob(enqueueUC),
		apihttp.WithGetJob(usecase.GetJob{Jobs: st.jobs}),
		apihttp.WithListJobs(usecase.ListJobs{Jobs: st.jobs, Videos: st.videos}),
		apihttp.WithSyncWatchState(usecase.SyncWatchState{States: st.watch, Broker: broker, Logger: logger}),
		apihttp.WithUploads(uploads),
		apihttp.WithVideos(st.videos),
		apihttp.WithBroker(broker),
		apihttp.WithMedia(layout),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	if st.client != nil {
		client := st.client
		serverOpts = append(serverOpts, apihttp.WithHealthCheck("mongo", func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}))
	}
	if brokerHealth != nil {
		serverOpts = append(serverOpts, apihttp.WithHealthCheck("redis", brokerHealth))
	}

	handler := apihttp.NewServer(resolveUC, serverOpts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return recoverUC.Run(gctx) })
	g.Go(func() error { return uploads.Run(gctx) })
	g.Go(func() error {
		logger.Info("server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		handler.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("http server error", slog.String("error", err.Error()))
		exitCode = 1
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := closeBroker(); err != nil {
		logger.Warn("event broker close error", slog.String("error", err.Error()))
	}
	if st.client != nil {
		if err := st.client.Disconnect(closeCtx); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func openStores(ctx context.Context, cfg app.Config, logger *slog.Logger) (stores, error) {
	if cfg.StorageMode == "memory" {
		logger.Warn("using in-memory storage, state is lost on restart")
		return stores{
			videos: memory.NewVideoStore(),
			jobs:   memory.NewJobStore(),
			watch:  memory.NewWatchStateStore(),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return stores{}, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return stores{}, err
	}

	videos := mongorepo.NewVideoRepository(client, cfg.MongoDatabase)
	jobs := mongorepo.NewJobRepository(client, cfg.MongoDatabase)
	if err := videos.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("collection", "videos"), slog.String("error", err.Error()))
	}
	if err := jobs.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("collection", "jobs"), slog.String("error", err.Error()))
	}

	return stores{
		videos: videos,
		jobs:   jobs,
		watch:  mongorepo.NewWatchStateRepository(client, cfg.MongoDatabase),
		client: client,
	}, nil
}

// buildBroker prefers Redis so several server processes share events. Without
// a reachable Redis the in-process broker is used and no health check is
// returned.
func buildBroker(ctx context.Context, cfg app.Config, logger *slog.Logger) (ports.EventBroker, apihttp.HealthCheck, func() error) {
	fallback := func() (ports.EventBroker, apihttp.HealthCheck, func() error) {
		b := eventsmemory.NewBroker()
		return b, nil, b.Close
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		logger.Info("redis not configured, using in-memory event broker")
		return fallback()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory event broker", slog.String("error", err.Error()))
		return fallback()
	}
	client := redis.NewClient(redisOpts)
	broker := eventsredis.NewBroker(client, "")

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := broker.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable, using in-memory event broker", slog.String("error", err.Error()))
		_ = client.Close()
		return fallback()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return broker, broker.Ping, client.Close
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	handlerOpts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
