package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"videostream/internal/domain"
)

type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

// Probe reads stream and container metadata of a local file. Every failure is
// reported as domain.ErrUnreadableMedia.
func (p *Prober) Probe(ctx context.Context, filePath string) (domain.SourceVideo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.SourceVideo{}, fmt.Errorf("%w: file path is required", domain.ErrUnreadableMedia)
	}
	if _, err := os.Stat(path); err != nil {
		return domain.SourceVideo{}, fmt.Errorf("%w: %v", domain.ErrUnreadableMedia, err)
	}

	src, err := p.runProbe(ctx, []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	})
	if err != nil {
		return domain.SourceVideo{}, fmt.Errorf("%w: %v", domain.ErrUnreadableMedia, err)
	}
	src.Path = path
	return src, nil
}

const maxProbeTimeout = 30 * time.Second

func (p *Prober) runProbe(ctx context.Context, args []string) (domain.SourceVideo, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.SourceVideo{}, fmt.Errorf("ffprobe failed: %w", err)
		}
		return domain.SourceVideo{}, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
	}

	return parseProbeOutput(stdout.Bytes())
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	BitRate      string `json:"bit_rate"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

var errNoVideoStream = errors.New("no video stream")

// parseProbeOutput parses raw ffprobe JSON output into a domain.SourceVideo.
// Cover art streams are not treated as video.
func parseProbeOutput(data []byte) (domain.SourceVideo, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.SourceVideo{}, err
	}

	var video *probeStream
	for i := range payload.Streams {
		s := &payload.Streams[i]
		if s.CodecType == "video" && s.Disposition.AttachedPic == 0 && s.Width > 0 && s.Height > 0 {
			video = s
			break
		}
	}
	if video == nil {
		return domain.SourceVideo{}, errNoVideoStream
	}

	src := domain.SourceVideo{
		Width:    video.Width,
		Height:   video.Height,
		FPS:      parseFrameRate(video.AvgFrameRate),
		Duration: parsePositiveFloat(payload.Format.Duration),
		Size:     int64(parsePositiveFloat(payload.Format.Size)),
		Bitrate:  int64(parsePositiveFloat(payload.Format.BitRate)),
	}
	if src.FPS == 0 {
		src.FPS = parseFrameRate(video.RFrameRate)
	}
	if src.Bitrate == 0 {
		src.Bitrate = int64(parsePositiveFloat(video.BitRate))
	}
	return src, nil
}

// parseFrameRate parses ffprobe rationals such as "30000/1001".
func parseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		return parsePositiveFloat(raw)
	}
	n := parsePositiveFloat(num)
	d := parsePositiveFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parsePositiveFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
