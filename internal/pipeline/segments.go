package pipeline

import (
	"fmt"
	"math"

	"videostream/internal/domain"
)

// PlanSegments returns the durations of the segments a media of the given
// length is cut into: ceil(duration/segmentDuration) entries, all equal to
// segmentDuration except possibly the last.
func PlanSegments(duration, segmentDuration float64) []float64 {
	if duration <= 0 || segmentDuration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil
	}
	count := int(math.Ceil(duration / segmentDuration))
	plan := make([]float64, count)
	for i := range plan {
		plan[i] = segmentDuration
	}
	if last := duration - float64(count-1)*segmentDuration; last > 0 {
		plan[count-1] = last
	}
	return plan
}

// LocateSegment maps a playback position to the index of the segment that
// contains it and the offset inside that segment.
func LocateSegment(position, segmentDuration float64) (int, float64, error) {
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrInvalidPosition, position)
	}
	if segmentDuration <= 0 {
		return 0, 0, fmt.Errorf("segment duration must be positive, got %v", segmentDuration)
	}
	index := int(math.Floor(position / segmentDuration))
	offset := position - float64(index)*segmentDuration
	if offset < 0 && index > 0 {
		// position/segmentDuration rounded up onto a boundary.
		index--
		offset = position - float64(index)*segmentDuration
	}
	return index, offset, nil
}

// FitDurations reconciles the planned durations with the number of segment
// files the muxer actually produced.
func FitDurations(plan []float64, count int, segmentDuration float64) []float64 {
	out := make([]float64, count)
	for i := range out {
		if i < len(plan) {
			out[i] = plan[i]
		} else {
			out[i] = segmentDuration
		}
	}
	return out
}
