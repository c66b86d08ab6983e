package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"videostream/internal/app"
	"videostream/internal/domain"
	"videostream/internal/pipeline"
	mongorepo "videostream/internal/repository/mongo"
	"videostream/internal/services/media/ffmpeg"
	"videostream/internal/services/media/ffprobe"
	"videostream/internal/telemetry"
	"videostream/internal/worker"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// The worker process only consumes the shared job collection, so it always
// runs against MongoDB regardless of STORAGE_MODE.
func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init(context.Background(), "videostream-worker")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	if cfg.StorageMode == "memory" {
		logger.Error("worker needs shared storage, STORAGE_MODE=memory is not supported")
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("service", "videostream-worker"),
		slog.String("mediaDir", cfg.MediaDir),
		slog.Int("transcodeWorkers", cfg.TranscodeWorkers),
		slog.Int("thumbnailWorkers", cfg.ThumbnailWorkers),
		slog.Int("maxConcurrentEncodes", cfg.MaxConcurrentEncodes),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	videos := mongorepo.NewVideoRepository(mongoClient, cfg.MongoDatabase)
	jobs := mongorepo.NewJobRepository(mongoClient, cfg.MongoDatabase)
	if err := jobs.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

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

	pool := worker.NewPool(jobs, worker.Handlers{
		Transcode: pipeline.TranscodeHandler{
			Videos:          videos,
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
			Videos:    videos,
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

	pool.Start(rootCtx)
	logger.Info("worker started")

	<-rootCtx.Done()
	logger.Info("shutdown signal received")
	pool.Stop()

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer disconnectCancel()
	if err := mongoClient.Disconnect(disconnectCtx); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}
	logger.Info("worker stopped")
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
