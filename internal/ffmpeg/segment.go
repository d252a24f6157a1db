package ffmpeg

import (
	"fmt"
	"sort"
	"time"
)

// Segment is one slice of a split input. Segments are contiguous,
// non-overlapping, and ordered by Index; concatenating them in ordinal
// order reconstructs the full duration.
type Segment struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
}

// End returns the exclusive end timestamp of the segment.
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// SegmentCount returns the minimal number of equal-duration segments needed
// so that each segment's estimated size stays under limit, assuming size is
// linear in duration.
func SegmentCount(inputSize, sizeLimit int64) int {
	if sizeLimit <= 0 || inputSize <= sizeLimit {
		return 1
	}
	return int((inputSize + sizeLimit - 1) / sizeLimit)
}

// PlanSegments cuts total into n contiguous segments whose start offsets are
// snapped to the nearest preceding keyframe. Boundaries are never guessed
// inside a GOP: a cut point that does not land exactly on a keyframe moves
// back to the previous one so every segment stays independently decodable.
//
// keyframes must be ascending timestamps of the input's video keyframes.
func PlanSegments(total time.Duration, n int, keyframes []time.Duration) ([]Segment, error) {
	if total <= 0 {
		return nil, fmt.Errorf("planning segments: non-positive duration %v", total)
	}
	if n < 2 {
		return nil, fmt.Errorf("planning segments: need at least 2 segments, got %d", n)
	}
	if len(keyframes) == 0 {
		return nil, fmt.Errorf("planning segments: empty keyframe index")
	}

	target := total / time.Duration(n)

	starts := []time.Duration{0}
	for i := 1; i < n; i++ {
		ideal := target * time.Duration(i)
		snapped := snapToKeyframe(ideal, keyframes)

		prev := starts[len(starts)-1]
		if snapped <= prev {
			// Sparse keyframes collapsed this boundary onto the previous
			// one; advance to the first keyframe past it instead.
			next, ok := firstKeyframeAfter(prev, keyframes)
			if !ok || next >= total {
				break
			}
			snapped = next
		}
		if snapped >= total {
			break
		}
		starts = append(starts, snapped)
	}

	if len(starts) < 2 {
		return nil, fmt.Errorf("planning segments: keyframe index too sparse to cut %v into %d segments", total, n)
	}

	segments := make([]Segment, len(starts))
	for i, start := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		segments[i] = Segment{Index: i, Start: start, Duration: end - start}
	}
	return segments, nil
}

// snapToKeyframe returns the largest keyframe timestamp <= ts, or the first
// keyframe when ts precedes all of them.
func snapToKeyframe(ts time.Duration, keyframes []time.Duration) time.Duration {
	i := sort.Search(len(keyframes), func(i int) bool { return keyframes[i] > ts })
	if i == 0 {
		return keyframes[0]
	}
	return keyframes[i-1]
}

// firstKeyframeAfter returns the smallest keyframe timestamp strictly after ts.
func firstKeyframeAfter(ts time.Duration, keyframes []time.Duration) (time.Duration, bool) {
	i := sort.Search(len(keyframes), func(i int) bool { return keyframes[i] > ts })
	if i == len(keyframes) {
		return 0, false
	}
	return keyframes[i], true
}

// ValidateSegments checks the segment invariants: ordinal indexes starting
// at zero, contiguity, and durations summing to total.
func ValidateSegments(segments []Segment, total time.Duration) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments")
	}
	if segments[0].Start != 0 {
		return fmt.Errorf("first segment starts at %v, want 0", segments[0].Start)
	}
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.Duration <= 0 {
			return fmt.Errorf("segment %d has non-positive duration %v", i, seg.Duration)
		}
		if i > 0 && segments[i-1].End() != seg.Start {
			return fmt.Errorf("segment %d starts at %v, previous ends at %v", i, seg.Start, segments[i-1].End())
		}
	}
	if last := segments[len(segments)-1]; last.End() != total {
		return fmt.Errorf("segments end at %v, want %v", last.End(), total)
	}
	return nil
}
