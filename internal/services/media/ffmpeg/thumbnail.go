package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"videostream/internal/domain"
)

type Thumbnailer struct {
	cfg Config
	run runFunc
}

func NewThumbnailer(cfg Config) *Thumbnailer {
	return &Thumbnailer{cfg: cfg.withDefaults(), run: execRun}
}

// Extract grabs one frame at the given offset (seconds) into a JPEG.
func (t *Thumbnailer) Extract(ctx context.Context, inputPath, outputPath string, at float64) error {
	if at < 0 {
		at = 0
	}
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", "scale=640:-2",
		"-q:v", "2",
		outputPath,
	}
	stderr, err := t.run(ctx, t.cfg.Binary, args)
	if err != nil {
		_ = os.Remove(outputPath)
		return runErr(domain.ErrConversionFailed, err, stderr)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: no thumbnail written: %v", domain.ErrConversionFailed, err)
	}
	return nil
}
