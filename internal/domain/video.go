package domain

import "time"

type VideoID string

// OriginalQuality names the rendition that is the untouched source.
const OriginalQuality = "original"

// VideoRecord is the persisted view of an uploaded video. The pipeline only
// writes NativeQuality, Qualities, Duration, MasterManifestPath and
// ThumbnailPath; everything else belongs to the upload layer.
type VideoRecord struct {
	ID                 VideoID       `json:"id"`
	OwnerID            string        `json:"ownerId"`
	Title              string        `json:"title"`
	SourcePath         string        `json:"-"`
	NativeQuality      string        `json:"nativeQuality,omitempty"`
	Qualities          QualityLadder `json:"qualities,omitempty"`
	Duration           float64       `json:"duration,omitempty"`
	MasterManifestPath string        `json:"masterManifestPath,omitempty"`
	ThumbnailPath      string        `json:"thumbnailPath,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// VideoPatch is a partial update of the pipeline-owned fields of a
// VideoRecord. Nil fields are left untouched.
type VideoPatch struct {
	NativeQuality      *string
	Qualities          QualityLadder
	Duration           *float64
	MasterManifestPath *string
	ThumbnailPath      *string
}

func (p VideoPatch) Empty() bool {
	return p.NativeQuality == nil && p.Qualities == nil && p.Duration == nil &&
		p.MasterManifestPath == nil && p.ThumbnailPath == nil
}

// Apply returns v with the patch applied.
func (p VideoPatch) Apply(v VideoRecord) VideoRecord {
	if p.NativeQuality != nil {
		v.NativeQuality = *p.NativeQuality
	}
	if p.Qualities != nil {
		v.Qualities = append(QualityLadder(nil), p.Qualities...)
	}
	if p.Duration != nil {
		v.Duration = *p.Duration
	}
	if p.MasterManifestPath != nil {
		v.MasterManifestPath = *p.MasterManifestPath
	}
	if p.ThumbnailPath != nil {
		v.ThumbnailPath = *p.ThumbnailPath
	}
	return v
}

// SourceVideo is the probed description of an input file.
type SourceVideo struct {
	Path          string  `json:"path"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	FPS           float64 `json:"fps"`
	Duration      float64 `json:"duration"`
	Size          int64   `json:"size"`
	Bitrate       int64   `json:"bitrate"`
	NativeQuality string  `json:"nativeQuality"`
}

func (s SourceVideo) Resolution() string {
	return FormatResolution(s.Width, s.Height)
}

type RenditionArtifact struct {
	Quality    string  `json:"quality"`
	Path       string  `json:"path"`
	Bitrate    int64   `json:"bitrate"`
	Resolution string  `json:"resolution"`
	Duration   float64 `json:"duration"`
}

// SegmentSet is one rendition cut into fixed-duration segments. Every segment
// except possibly the final one is exactly SegmentDuration seconds long.
type SegmentSet struct {
	Quality         string    `json:"quality"`
	Segments        []string  `json:"segments"`
	Durations       []float64 `json:"durations"`
	SegmentDuration float64   `json:"segmentDuration"`
	ManifestPath    string    `json:"manifestPath"`
}

type VariantEntry struct {
	Quality      string `json:"quality"`
	ManifestPath string `json:"manifestPath"`
	Bandwidth    int64  `json:"bandwidth"`
	Resolution   string `json:"resolution"`
}

type MasterManifest struct {
	Path     string         `json:"path"`
	Variants []VariantEntry `json:"variants"`
}
