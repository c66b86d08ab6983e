package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"videostream/internal/domain"
)

// runFunc executes one encoder invocation and returns its stderr.
type runFunc func(ctx context.Context, binary string, args []string) ([]byte, error)

func execRun(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Config holds encoder settings shared by converter, segmenter and
// thumbnailer.
type Config struct {
	Binary       string
	Preset       string
	CRF          int
	AudioBitrate string
	Policy       domain.QualityPolicy
	// KeyframeInterval forces a keyframe every n seconds in converted
	// renditions. When it equals the segment duration the segmenter can
	// stream-copy them.
	KeyframeInterval float64
}

func (c Config) withDefaults() Config {
	c.Binary = strings.TrimSpace(c.Binary)
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.Preset == "" {
		c.Preset = "veryfast"
	}
	if c.CRF <= 0 {
		c.CRF = 23
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = "128k"
	}
	if c.Policy.Tiers == nil {
		c.Policy = domain.DefaultQualityPolicy()
	}
	return c
}

const maxStderrTail = 512

// runErr formats an encoder failure with the tail of its stderr, wrapped in
// the stage sentinel.
func runErr(sentinel error, err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if len(msg) > maxStderrTail {
		msg = "..." + msg[len(msg)-maxStderrTail:]
	}
	if msg == "" {
		return fmt.Errorf("%w: ffmpeg: %v", sentinel, err)
	}
	return fmt.Errorf("%w: ffmpeg: %v: %s", sentinel, err, msg)
}
