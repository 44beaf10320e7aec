package audio

// This file holds the buffer-period alignment arithmetic of spec §4.3 (C3)
// as pure, platform-independent functions, grounded on
// calculate_period_100ns / calculate_aligned_period_near in
// original_source's audio/api/wasapi/api.rs. Keeping the math here, rather
// than inline in wasapi_windows.go, lets it be exercised by
// session_test.go without a COM dependency.

// Period100nsPerSecond is the number of 100-nanosecond units in one second,
// the unit WASAPI expresses buffer periods in.
const Period100nsPerSecond = 10_000_000

// FramesToPeriod100ns converts a frame count at sampleRate into a
// 100-ns period, rounding to the nearest unit.
func FramesToPeriod100ns(frames, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return roundDiv(int64(frames)*Period100nsPerSecond, int64(sampleRate))
}

// Period100nsToFrames converts a 100-ns period at sampleRate back into a
// frame count, rounding to the nearest unit.
func Period100nsToFrames(period100ns int64, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(roundDiv(period100ns*int64(sampleRate), Period100nsPerSecond))
}

func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	if (num < 0) != (den < 0) {
		return -((-num + den/2) / den)
	}
	return (num + den/2) / den
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func lcm(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

// AlignPeriod computes an engine period (in 100-ns units) whose equivalent
// frame count is a whole multiple of the device's required frame
// alignment, per spec §4.3. desired is first raised to min if it is
// smaller; its frame count is then rounded down to a multiple of the
// alignment and raised by whole alignment steps until the period is no
// shorter than min. The result can be shorter than desired, never shorter
// than min. The alignment is derived from blockAlign (bytes per frame) and
// deviceAlignBytes (the device's reported buffer-alignment granularity in
// bytes, e.g. 128).
func AlignPeriod(desired100ns, min100ns int64, sampleRate, blockAlign, deviceAlignBytes int) int64 {
	if desired100ns < min100ns {
		desired100ns = min100ns
	}
	if blockAlign <= 0 {
		blockAlign = 1
	}
	alignBytes := lcm(int64(blockAlign), int64(deviceAlignBytes))
	if alignBytes <= 0 {
		alignBytes = int64(blockAlign)
	}
	alignFrames := alignBytes / int64(blockAlign)
	if alignFrames <= 0 {
		alignFrames = 1
	}

	desiredFrames := int64(Period100nsToFrames(desired100ns, sampleRate))
	minFrames := int64(Period100nsToFrames(min100ns, sampleRate))

	segments := desiredFrames / alignFrames
	if segments*alignFrames < minFrames {
		segments++
	}
	if segments < 1 {
		segments = 1
	}
	alignedFrames := segments * alignFrames
	for sampleRate > 0 && FramesToPeriod100ns(int(alignedFrames), sampleRate) < min100ns {
		alignedFrames += alignFrames
	}
	return FramesToPeriod100ns(int(alignedFrames), sampleRate)
}

// RetryPeriodFromBufferSize computes the engine period to retry with after
// AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED: the device reports the frame count it
// actually wants via GetBufferSize, and the caller re-initializes using the
// period equivalent to that exact count (spec §4.3, single-retry policy).
func RetryPeriodFromBufferSize(deviceReportedFrames, sampleRate int) int64 {
	return FramesToPeriod100ns(deviceReportedFrames, sampleRate)
}
