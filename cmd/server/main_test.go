package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"videostream/internal/app"
	eventsmemory "videostream/internal/events/memory"
	"videostream/internal/storage/memory"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLogLevel(tc.raw); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestBuildBrokerFallsBackToMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, url := range []string{"", "http://localhost:6379"} {
		broker, health, closeFn := buildBroker(context.Background(), app.Config{RedisURL: url}, logger)
		if _, ok := broker.(*eventsmemory.Broker); !ok {
			t.Fatalf("url %q: broker = %T, want memory broker", url, broker)
		}
		if health != nil {
			t.Fatalf("url %q: expected no health check for memory broker", url)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}

func TestOpenStoresMemoryMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := openStores(context.Background(), app.Config{StorageMode: "memory"}, logger)
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	if st.client != nil {
		t.Fatalf("memory mode must not connect to mongo")
	}
	if _, ok := st.videos.(*memory.VideoStore); !ok {
		t.Fatalf("videos = %T", st.videos)
	}
	if _, ok := st.jobs.(*memory.JobStore); !ok {
		t.Fatalf("jobs = %T", st.jobs)
	}
	if _, ok := st.watch.(*memory.WatchStateStore); !ok {
		t.Fatalf("watch = %T", st.watch)
	}
}
