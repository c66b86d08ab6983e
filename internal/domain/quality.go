package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// StandardTiers are the nominal heights of the rendition ladder, tallest first.
var StandardTiers = []int{2160, 1440, 1080, 720, 480, 360, 240, 144}

// TierTolerance admits sources a few lines short of a tier (e.g. 1072p) as
// that tier.
const TierTolerance = 10

// QualityLadder is the ordered list of renditions to produce for a video.
// The first entry is always OriginalQuality.
type QualityLadder []string

func (l QualityLadder) Contains(quality string) bool {
	for _, q := range l {
		if q == quality {
			return true
		}
	}
	return false
}

func TierLabel(height int) string {
	return strconv.Itoa(height) + "p"
}

// BuildQualityLadder derives the rendition ladder and native quality label for
// a source of the given height. A tier is a candidate when height >= tier-10.
// The tier the source itself matches is served by "original" and is not
// produced a second time.
func BuildQualityLadder(height int) (QualityLadder, string) {
	ladder := QualityLadder{OriginalQuality}
	native := ""
	for _, tier := range StandardTiers {
		if height < tier-TierTolerance {
			continue
		}
		if abs(height-tier) <= TierTolerance {
			if native == "" {
				native = TierLabel(tier)
			}
			continue
		}
		ladder = append(ladder, TierLabel(tier))
	}
	if native == "" {
		native = TierLabel(height)
	}
	return ladder, native
}

type QualitySpec struct {
	Width   int
	Height  int
	Bitrate int64 // bits per second
}

func (s QualitySpec) Resolution() string {
	return FormatResolution(s.Width, s.Height)
}

// QualityPolicy maps quality labels to target encode settings. Labels missing
// from Tiers resolve to Fallback.
type QualityPolicy struct {
	Tiers    map[string]QualitySpec
	Fallback QualitySpec
}

func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		Tiers: map[string]QualitySpec{
			"2160p": {Width: 3840, Height: 2160, Bitrate: 16_000_000},
			"1440p": {Width: 2560, Height: 1440, Bitrate: 9_000_000},
			"1080p": {Width: 1920, Height: 1080, Bitrate: 5_000_000},
			"720p":  {Width: 1280, Height: 720, Bitrate: 2_800_000},
			"480p":  {Width: 854, Height: 480, Bitrate: 1_400_000},
			"360p":  {Width: 640, Height: 360, Bitrate: 800_000},
			"240p":  {Width: 426, Height: 240, Bitrate: 400_000},
			"144p":  {Width: 256, Height: 144, Bitrate: 200_000},
		},
		Fallback: QualitySpec{Width: 640, Height: 360, Bitrate: 1_000_000},
	}
}

func (p QualityPolicy) Lookup(quality string) (QualitySpec, bool) {
	spec, ok := p.Tiers[strings.ToLower(strings.TrimSpace(quality))]
	return spec, ok
}

// Spec returns the settings for quality, falling back to p.Fallback.
func (p QualityPolicy) Spec(quality string) QualitySpec {
	if spec, ok := p.Lookup(quality); ok {
		return spec
	}
	return p.Fallback
}

// OriginalSpec describes the untouched source rendition. Bandwidth is the
// probed bitrate when known, otherwise the table value for the native label.
func (p QualityPolicy) OriginalSpec(src SourceVideo) QualitySpec {
	spec := p.Spec(src.NativeQuality)
	if src.Width > 0 && src.Height > 0 {
		spec.Width = src.Width
		spec.Height = src.Height
	}
	if src.Bitrate > 0 {
		spec.Bitrate = src.Bitrate
	}
	return spec
}

func FormatResolution(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
