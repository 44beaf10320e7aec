package audio

// WaveFormat is the platform-neutral description of the wire format a
// backend asks a device to accept: everything spec §4.2 says to compute
// before the actual IsFormatSupported/Initialize calls, factored out so it
// can be built and tested without any COM/cgo dependency.
type WaveFormat struct {
	Channels       int
	SampleRate     int
	BitsPerSample  int
	BlockAlign     int
	BytesPerSecond int
	ChannelMask    uint32
	// IEEEFloat is true for 32-bit samples (IEEE float subformat);
	// false means integer PCM.
	IEEEFloat bool
}

// BuildWaveFormat computes the full descriptor for params, including the
// "first N bits set" channel mask for N <= 18 and the subformat selection
// (integer PCM at <=24 bits, IEEE float at 32 bits) from spec §4.2.
func BuildWaveFormat(params StreamParams) WaveFormat {
	return WaveFormat{
		Channels:       params.Channels,
		SampleRate:     int(params.SampleRate),
		BitsPerSample:  int(params.BitsPerSample),
		BlockAlign:     params.BlockAlign(),
		BytesPerSecond: params.BytesPerSecond(),
		ChannelMask:    ChannelMask(params.Channels),
		IEEEFloat:      params.BitsPerSample == Bits32,
	}
}

// ChannelMask returns the default dwChannelMask: one bit set per channel
// for channel counts up to 18, and 0 (unspecified) beyond that.
func ChannelMask(channels int) uint32 {
	if channels <= 0 || channels > 18 {
		return 0
	}
	return (uint32(1) << uint(channels)) - 1
}

// simplified returns the WaveFormat with its channel mask cleared: used by
// the exclusive-mode retry in spec §4.2 when the first probe is rejected
// and the channel mask's numeric value was <= 2 (mono, mask 1; stereo's
// mask of 3 does not qualify). The Windows backend still sends the result
// as a WAVE_FORMAT_EXTENSIBLE descriptor, so the retry differs from the
// first probe only in its zero channel mask.
func (w WaveFormat) simplified() WaveFormat {
	s := w
	s.ChannelMask = 0
	return s
}

// eligibleForSimplifiedRetry reports whether a rejected exclusive-mode
// probe should be retried with the simplified (non-extensible) format.
// This mirrors the original implementation's literal dwChannelMask <= 2
// check verbatim, which in practice only admits mono (mask 1); stereo's
// mask of 3 falls through to the unsupported-format error instead.
func (w WaveFormat) eligibleForSimplifiedRetry() bool {
	return w.ChannelMask <= 2
}
