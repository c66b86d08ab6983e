package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	StorageMode   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string
	LogLevel      string
	LogFormat     string
	MediaDir      string
	UploadDir     string
	PublicBaseURL string

	UploadIdleTTL      time.Duration // 0 = unfinished uploads never expire
	UploadCompletedTTL time.Duration // 0 = finished uploads stay listed

	FFMPEGPath         string
	FFProbePath        string
	EncodePreset       string
	EncodeCRF          int
	EncodeAudioBitrate string
	SegmentDuration    float64 // seconds

	TranscodeWorkers     int
	ThumbnailWorkers     int
	MaxConcurrentEncodes int // 0 = unlimited
	WorkerPollInterval   time.Duration
	WorkerMaxBackoff     time.Duration
	StaleJobTimeout      time.Duration // 0 = recovery disabled

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		StorageMode:   strings.ToLower(getEnv("STORAGE_MODE", "mongo")),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "videostream"),
		RedisURL:      getEnv("REDIS_URL", ""),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MediaDir:      getEnv("MEDIA_DIR", "media"),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		UploadIdleTTL:      getEnvDuration("UPLOAD_IDLE_TTL", 24*time.Hour),
		UploadCompletedTTL: getEnvDuration("UPLOAD_COMPLETED_TTL", time.Hour),

		FFMPEGPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		EncodePreset:       getEnv("ENCODE_PRESET", "veryfast"),
		EncodeCRF:          int(getEnvInt64("ENCODE_CRF", 23)),
		EncodeAudioBitrate: getEnv("ENCODE_AUDIO_BITRATE", "128k"),
		SegmentDuration:    getEnvFloat("SEGMENT_DURATION_SECONDS", 10),

		TranscodeWorkers:     int(getEnvInt64("WORKERS_TRANSCODE", 1)),
		ThumbnailWorkers:     int(getEnvInt64("WORKERS_THUMBNAIL", 1)),
		MaxConcurrentEncodes: int(getEnvInt64("MAX_CONCURRENT_ENCODES", 0)),
		WorkerPollInterval:   getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerMaxBackoff:     getEnvDuration("WORKER_MAX_BACKOFF", 10*time.Second),
		StaleJobTimeout:      getEnvDuration("STALE_JOB_TIMEOUT", 0),

		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 100),
		RateLimitBurst:     int(getEnvInt64("RATE_LIMIT_BURST", 200)),
		CORSAllowedOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvFloat accepts only positive values; anything else yields fallback.
func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a Go duration ("30s", "5m"). A bare integer is taken
// as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
