package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFramesToPeriodRoundTrips(t *testing.T) {
	period := FramesToPeriod100ns(480, 48000)
	assert.Equal(t, int64(100000), period) // 480/48000s = 10ms = 100000 * 100ns
	assert.Equal(t, 480, Period100nsToFrames(period, 48000))
}

func TestAlignPeriodIsAtLeastMinimum(t *testing.T) {
	aligned := AlignPeriod(30000, 100000, 48000, 4, 128)
	assert.GreaterOrEqual(t, aligned, int64(100000))
}

// TestAlignPeriodProperty checks the alignment invariant spec §4.3
// requires: the resulting period's equivalent frame count is always a
// whole multiple of the device's alignment granularity, and never falls
// below the minimum period the device reported.
func TestAlignPeriodProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sampleRate := rapid.SampledFrom([]int{44100, 48000, 96000, 192000}).Draw(t, "sampleRate")
		blockAlign := rapid.IntRange(1, 32).Draw(t, "blockAlign")
		alignBytes := rapid.SampledFrom([]int{64, 128, 256}).Draw(t, "alignBytes")
		desired := rapid.Int64Range(1000, 2_000_000).Draw(t, "desired100ns")
		min := rapid.Int64Range(1000, 2_000_000).Draw(t, "min100ns")

		aligned := AlignPeriod(desired, min, sampleRate, blockAlign, alignBytes)

		if aligned < min {
			t.Fatalf("aligned period %d below minimum %d", aligned, min)
		}
		frames := Period100nsToFrames(aligned, sampleRate)
		alignFrames := lcm(int64(blockAlign), int64(alignBytes)) / int64(blockAlign)
		if alignFrames <= 0 {
			alignFrames = 1
		}
		if int64(frames)%alignFrames != 0 {
			t.Fatalf("aligned frame count %d is not a multiple of %d", frames, alignFrames)
		}
	})
}
