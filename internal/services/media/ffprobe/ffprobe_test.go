package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"videostream/internal/domain"
)

// ---------------------------------------------------------------------------
// Unit tests - no ffprobe binary needed
// ---------------------------------------------------------------------------

func TestProbeEmptyPath(t *testing.T) {
	p := New("")
	for _, path := range []string{"", "   "} {
		_, err := p.Probe(context.Background(), path)
		if !errors.Is(err, domain.ErrUnreadableMedia) {
			t.Fatalf("Probe(%q): expected ErrUnreadableMedia, got %v", path, err)
		}
	}
}

func TestProbeMissingFile(t *testing.T) {
	p := New("")
	_, err := p.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, domain.ErrUnreadableMedia) {
		t.Fatalf("expected ErrUnreadableMedia, got %v", err)
	}
}

func TestNewDefaultsBinary(t *testing.T) {
	if got := New("  ").binary; got != "ffprobe" {
		t.Fatalf("binary = %q", got)
	}
	if got := New("/opt/ffprobe").binary; got != "/opt/ffprobe" {
		t.Fatalf("binary = %q", got)
	}
}

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000"},
			{"codec_type": "video", "codec_name": "mjpeg", "width": 300, "height": 300, "disposition": {"attached_pic": 1}},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "bit_rate": "4800000"}
		],
		"format": {"duration": "95.040000", "size": "60000000", "bit_rate": "5050000"}
	}`)

	src, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if src.Width != 1920 || src.Height != 1080 {
		t.Fatalf("dimensions = %dx%d", src.Width, src.Height)
	}
	if math.Abs(src.FPS-29.97) > 0.01 {
		t.Fatalf("FPS = %v", src.FPS)
	}
	if src.Duration != 95.04 {
		t.Fatalf("Duration = %v", src.Duration)
	}
	if src.Size != 60000000 {
		t.Fatalf("Size = %d", src.Size)
	}
	if src.Bitrate != 5050000 {
		t.Fatalf("Bitrate = %d, want container bitrate", src.Bitrate)
	}
}

func TestParseProbeOutputFallsBackToStreamBitrate(t *testing.T) {
	data := []byte(`{"streams":[{"codec_type":"video","width":640,"height":360,"r_frame_rate":"25/1","bit_rate":"800000"}],"format":{"duration":"N/A"}}`)
	src, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if src.Bitrate != 800000 {
		t.Fatalf("Bitrate = %d", src.Bitrate)
	}
	if src.FPS != 25 {
		t.Fatalf("FPS = %v", src.FPS)
	}
	if src.Duration != 0 {
		t.Fatalf("Duration = %v, want 0 for N/A", src.Duration)
	}
}

func TestParseProbeOutputErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"audio only", `{"streams":[{"codec_type":"audio"}],"format":{}}`},
		{"cover art only", `{"streams":[{"codec_type":"video","width":300,"height":300,"disposition":{"attached_pic":1}}]}`},
		{"zero dimensions", `{"streams":[{"codec_type":"video","width":0,"height":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseProbeOutput([]byte(tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"25/1", 25},
		{"0/0", 0},
		{"24", 24},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.raw); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Integration test - requires ffprobe on PATH
// ---------------------------------------------------------------------------

func TestProbeNonMediaFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := writeFile(path, "definitely not a video"); err != nil {
		t.Fatal(err)
	}
	_, err := New("").Probe(context.Background(), path)
	if !errors.Is(err, domain.ErrUnreadableMedia) {
		t.Fatalf("expected ErrUnreadableMedia, got %v", err)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
