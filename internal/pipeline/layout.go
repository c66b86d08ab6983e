package pipeline

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"videostream/internal/domain"
)

const (
	MediaManifestName  = "manifest.m3u8"
	MasterManifestName = "master.m3u8"
	ThumbnailName      = "thumbnail.jpg"
)

// Layout places pipeline output on disk:
//
//	<media>/videos/<id>/master.m3u8
//	<media>/videos/<id>/thumbnail.jpg
//	<media>/videos/<id>/renditions/<quality>/<quality>.mp4
//	<media>/videos/<id>/segments/<quality>/manifest.m3u8
//	<media>/videos/<id>/segments/<quality>/segment_000.ts
type Layout struct {
	MediaDir string
}

func (l Layout) VideoDir(id domain.VideoID) string {
	return filepath.Join(l.MediaDir, "videos", string(id))
}

func (l Layout) RenditionDir(id domain.VideoID, quality string) string {
	return filepath.Join(l.VideoDir(id), "renditions", quality)
}

func (l Layout) SegmentDir(id domain.VideoID, quality string) string {
	return filepath.Join(l.VideoDir(id), "segments", quality)
}

func (l Layout) MediaManifestPath(id domain.VideoID, quality string) string {
	return filepath.Join(l.SegmentDir(id, quality), MediaManifestName)
}

func (l Layout) MasterManifestPath(id domain.VideoID) string {
	return filepath.Join(l.VideoDir(id), MasterManifestName)
}

func (l Layout) ThumbnailPath(id domain.VideoID) string {
	return filepath.Join(l.VideoDir(id), ThumbnailName)
}

var errPathEscape = errors.New("path escapes media dir")

// SegmentFile resolves a segment file name inside a rendition directory,
// rejecting names that would leave it.
func (l Layout) SegmentFile(id domain.VideoID, quality, name string) (string, error) {
	if !validPathElem(string(id)) || !validPathElem(quality) || !validPathElem(name) {
		return "", errPathEscape
	}
	return filepath.Join(l.SegmentDir(id, quality), name), nil
}

// VideoFile resolves a per-video output file such as the master manifest or
// thumbnail, rejecting ids that would leave the video dir.
func (l Layout) VideoFile(id domain.VideoID, name string) (string, error) {
	if !validPathElem(string(id)) || !validPathElem(name) {
		return "", errPathEscape
	}
	return filepath.Join(l.VideoDir(id), name), nil
}

// SegmentURL is the public URL of one segment, relative to baseURL.
func SegmentURL(baseURL string, id domain.VideoID, quality, name string) string {
	base := strings.TrimSuffix(baseURL, "/")
	return base + "/" + path.Join("videos", string(id), "segments", quality, name)
}

func validPathElem(elem string) bool {
	if elem == "" || elem == "." || elem == ".." {
		return false
	}
	return !strings.ContainsAny(elem, `/\`)
}
