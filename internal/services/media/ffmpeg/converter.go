package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"videostream/internal/domain"
)

// Converter re-encodes a source into one quality tier of the policy table.
type Converter struct {
	cfg Config
	run runFunc
}

func NewConverter(cfg Config) *Converter {
	return &Converter{cfg: cfg.withDefaults(), run: execRun}
}

func (c *Converter) Convert(ctx context.Context, src domain.SourceVideo, quality, outDir string) (domain.RenditionArtifact, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.RenditionArtifact{}, fmt.Errorf("%w: %v", domain.ErrConversionFailed, err)
	}
	spec := c.cfg.Policy.Spec(quality)
	out := filepath.Join(outDir, quality+".mp4")

	stderr, err := c.run(ctx, c.cfg.Binary, c.args(src.Path, out, spec))
	if err != nil {
		_ = os.Remove(out)
		return domain.RenditionArtifact{}, runErr(domain.ErrConversionFailed, err, stderr)
	}
	if info, statErr := os.Stat(out); statErr != nil || info.Size() == 0 {
		return domain.RenditionArtifact{}, fmt.Errorf("%w: encoder produced no output for %s", domain.ErrConversionFailed, quality)
	}

	return domain.RenditionArtifact{
		Quality:    quality,
		Path:       out,
		Bitrate:    spec.Bitrate,
		Resolution: spec.Resolution(),
		Duration:   src.Duration,
	}, nil
}

func (c *Converter) args(input, output string, spec domain.QualitySpec) []string {
	bitrate := strconv.FormatInt(spec.Bitrate, 10)
	bufsize := strconv.FormatInt(spec.Bitrate*2, 10)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2", spec.Width, spec.Height),
		"-c:v", "libx264",
		"-preset", c.cfg.Preset,
		"-crf", strconv.Itoa(c.cfg.CRF),
		"-maxrate", bitrate,
		"-bufsize", bufsize,
		"-pix_fmt", "yuv420p",
	}
	if c.cfg.KeyframeInterval > 0 {
		args = append(args, keyframeArgs(c.cfg.KeyframeInterval)...)
	}
	return append(args,
		"-c:a", "aac",
		"-b:a", c.cfg.AudioBitrate,
		"-movflags", "+faststart",
		output,
	)
}

// keyframeArgs places a keyframe on every multiple of interval and disables
// scene-cut keyframes, so segment boundaries fall on keyframes.
func keyframeArgs(interval float64) []string {
	seconds := strconv.FormatFloat(interval, 'f', -1, 64)
	return []string{
		"-force_key_frames", "expr:gte(t,n_forced*" + seconds + ")",
		"-sc_threshold", "0",
	}
}
