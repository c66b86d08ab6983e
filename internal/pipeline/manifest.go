package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"videostream/internal/domain"
)

// RenderMediaManifest builds the per-rendition playlist: an HLS VOD media
// playlist listing the segments in order, one file name per line.
func RenderMediaManifest(segments []string, durations []float64, segmentDuration float64) []byte {
	target := segmentDuration
	for _, d := range durations {
		if d > target {
			target = d
		}
	}

	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(target)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i, name := range segments {
		d := segmentDuration
		if i < len(durations) {
			d = durations[i]
		}
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n", d)
		b.WriteString(name)
		b.WriteByte('\n')
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.Bytes()
}

// ReadMediaManifest returns the segment references of a media playlist in
// order. A missing file is reported as domain.ErrManifestNotFound.
func ReadMediaManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrManifestNotFound, path)
		}
		return nil, err
	}
	return ParseMediaManifest(data), nil
}

func ParseMediaManifest(data []byte) []string {
	var segments []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segments = append(segments, line)
	}
	return segments
}

// RenderMasterManifest builds the master playlist. Entries keep the order
// they are given in; each manifest path is written relative to baseDir.
func RenderMasterManifest(entries []domain.VariantEntry, baseDir string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	for _, e := range entries {
		rel, err := relativeManifestPath(baseDir, e.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", e.Quality, err)
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s,NAME=%q\n", e.Bandwidth, e.Resolution, e.Quality)
		b.WriteString(rel)
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

// ComposeMaster writes master.m3u8 into outDir and returns its description.
func ComposeMaster(entries []domain.VariantEntry, outDir string) (domain.MasterManifest, error) {
	data, err := RenderMasterManifest(entries, outDir)
	if err != nil {
		return domain.MasterManifest{}, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.MasterManifest{}, err
	}
	path := filepath.Join(outDir, MasterManifestName)
	if err := writeFileAtomic(path, data); err != nil {
		return domain.MasterManifest{}, err
	}
	return domain.MasterManifest{
		Path:     path,
		Variants: append([]domain.VariantEntry(nil), entries...),
	}, nil
}

func relativeManifestPath(baseDir, manifestPath string) (string, error) {
	rel, err := filepath.Rel(baseDir, manifestPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// WriteMediaManifest writes a media playlist to path, replacing any previous
// one.
func WriteMediaManifest(path string, segments []string, durations []float64, segmentDuration float64) error {
	return writeFileAtomic(path, RenderMediaManifest(segments, durations, segmentDuration))
}
