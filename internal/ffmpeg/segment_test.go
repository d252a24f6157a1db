package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evenKeyframes builds an ascending keyframe index with a fixed interval.
func evenKeyframes(total, interval time.Duration) []time.Duration {
	var kf []time.Duration
	for ts := time.Duration(0); ts < total; ts += interval {
		kf = append(kf, ts)
	}
	return kf
}

func TestSegmentCount(t *testing.T) {
	cases := []struct {
		name      string
		inputSize int64
		sizeLimit int64
		want      int
	}{
		{"fits exactly", 400, 400, 1},
		{"under limit", 399, 400, 1},
		{"just over", 401, 400, 2},
		{"900MB at 400MB limit", 900 << 20, 400 << 20, 3},
		{"no limit", 900, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SegmentCount(tc.inputSize, tc.sizeLimit))
		})
	}
}

func TestPlanSegments(t *testing.T) {
	t.Run("three even segments", func(t *testing.T) {
		// 600s of video at 900MB against a 400MB limit needs 3 cuts of
		// roughly 200s each.
		total := 600 * time.Second
		kf := evenKeyframes(total, 2*time.Second)

		n := SegmentCount(900<<20, 400<<20)
		require.Equal(t, 3, n)

		segments, err := PlanSegments(total, n, kf)
		require.NoError(t, err)
		require.Len(t, segments, 3)

		assert.Equal(t, time.Duration(0), segments[0].Start)
		assert.Equal(t, 200*time.Second, segments[1].Start)
		assert.Equal(t, 400*time.Second, segments[2].Start)
		require.NoError(t, ValidateSegments(segments, total))
	})

	t.Run("boundaries snap back to the preceding keyframe", func(t *testing.T) {
		total := 100 * time.Second
		kf := []time.Duration{0, 23 * time.Second, 71 * time.Second}

		segments, err := PlanSegments(total, 2, kf)
		require.NoError(t, err)
		require.Len(t, segments, 2)

		// The ideal cut at 50s is not a keyframe; the nearest preceding
		// one is 23s.
		assert.Equal(t, 23*time.Second, segments[1].Start)
		require.NoError(t, ValidateSegments(segments, total))
	})

	t.Run("collapsed boundary advances to the next keyframe", func(t *testing.T) {
		total := 90 * time.Second
		kf := []time.Duration{0, 80 * time.Second}

		// Ideal cuts at 30s and 60s both snap back to 0; the planner must
		// not emit a zero-length segment.
		segments, err := PlanSegments(total, 3, kf)
		require.NoError(t, err)
		require.Len(t, segments, 2)
		assert.Equal(t, 80*time.Second, segments[1].Start)
		require.NoError(t, ValidateSegments(segments, total))
	})

	t.Run("may produce fewer segments than requested", func(t *testing.T) {
		total := 60 * time.Second
		kf := []time.Duration{0, 55 * time.Second}

		segments, err := PlanSegments(total, 5, kf)
		require.NoError(t, err)
		assert.Less(t, len(segments), 5)
		require.NoError(t, ValidateSegments(segments, total))
	})

	t.Run("only the initial keyframe is unusable", func(t *testing.T) {
		_, err := PlanSegments(60*time.Second, 2, []time.Duration{0})
		assert.Error(t, err)
	})

	t.Run("rejects bad inputs", func(t *testing.T) {
		kf := evenKeyframes(60*time.Second, time.Second)

		_, err := PlanSegments(0, 2, kf)
		assert.Error(t, err)

		_, err = PlanSegments(60*time.Second, 1, kf)
		assert.Error(t, err)

		_, err = PlanSegments(60*time.Second, 2, nil)
		assert.Error(t, err)
	})

	t.Run("durations always sum to the total", func(t *testing.T) {
		total := 3571 * time.Second
		kf := evenKeyframes(total, 7*time.Second)

		for n := 2; n <= 12; n++ {
			segments, err := PlanSegments(total, n, kf)
			require.NoError(t, err, "n=%d", n)
			require.NoError(t, ValidateSegments(segments, total), "n=%d", n)
		}
	})
}

func TestValidateSegments(t *testing.T) {
	total := 100 * time.Second

	valid := []Segment{
		{Index: 0, Start: 0, Duration: 40 * time.Second},
		{Index: 1, Start: 40 * time.Second, Duration: 60 * time.Second},
	}
	assert.NoError(t, ValidateSegments(valid, total))

	t.Run("gap between segments", func(t *testing.T) {
		bad := []Segment{
			{Index: 0, Start: 0, Duration: 40 * time.Second},
			{Index: 1, Start: 50 * time.Second, Duration: 50 * time.Second},
		}
		assert.Error(t, ValidateSegments(bad, total))
	})

	t.Run("wrong ordinal", func(t *testing.T) {
		bad := []Segment{
			{Index: 0, Start: 0, Duration: 40 * time.Second},
			{Index: 2, Start: 40 * time.Second, Duration: 60 * time.Second},
		}
		assert.Error(t, ValidateSegments(bad, total))
	})

	t.Run("short of the total", func(t *testing.T) {
		bad := []Segment{
			{Index: 0, Start: 0, Duration: 40 * time.Second},
			{Index: 1, Start: 40 * time.Second, Duration: 50 * time.Second},
		}
		assert.Error(t, ValidateSegments(bad, total))
	})

	t.Run("nonzero first start", func(t *testing.T) {
		bad := []Segment{{Index: 0, Start: time.Second, Duration: 99 * time.Second}}
		assert.Error(t, ValidateSegments(bad, total))
	})
}
