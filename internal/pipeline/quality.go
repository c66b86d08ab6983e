package pipeline

import (
	"context"
	"fmt"
	"strings"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
)

// QualityResolver probes a source file and derives its rendition ladder.
type QualityResolver struct {
	Prober ports.MediaProber
}

func (r QualityResolver) Resolve(ctx context.Context, path string) (domain.SourceVideo, domain.QualityLadder, error) {
	if strings.TrimSpace(path) == "" {
		return domain.SourceVideo{}, nil, fmt.Errorf("%w: source path is empty", domain.ErrUnreadableMedia)
	}
	src, err := r.Prober.Probe(ctx, path)
	if err != nil {
		return domain.SourceVideo{}, nil, err
	}
	if src.Height <= 0 || src.Width <= 0 {
		return domain.SourceVideo{}, nil, fmt.Errorf("%w: no video dimensions in %s", domain.ErrUnreadableMedia, path)
	}
	ladder, native := domain.BuildQualityLadder(src.Height)
	src.NativeQuality = native
	if src.Path == "" {
		src.Path = path
	}
	return src, ladder, nil
}
