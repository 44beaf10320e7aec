package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PapyKahan/rhap/audio"
)

func TestPassthroughResamplerSelectedWhenFormatsMatch(t *testing.T) {
	params := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewResampler(params, params)
	_, ok := r.(*PassthroughResampler)
	assert.True(t, ok)
}

func TestPassthroughResamplerReturnsInputUnchanged(t *testing.T) {
	r := &PassthroughResampler{}
	in := []byte{1, 2, 3, 4}
	assert.Equal(t, in, r.Convert(in))
}

func TestSincResamplerSelectedWhenRatesDiffer(t *testing.T) {
	from := audio.StreamParams{Channels: 2, SampleRate: audio.Rate44100, BitsPerSample: audio.Bits16}
	to := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewResampler(from, to)
	_, ok := r.(*SincResampler)
	assert.True(t, ok)
}

func TestSincResamplerProducesApproximatelyExpectedFrameCount(t *testing.T) {
	from := audio.StreamParams{Channels: 1, SampleRate: audio.Rate44100, BitsPerSample: audio.Bits16}
	to := audio.StreamParams{Channels: 1, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewSincResampler(from, to)

	frames := 4410
	in := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		in[i*2] = byte(i)
	}
	out := r.Convert(in)
	gotFrames := len(out) / 2
	wantFrames := int(float64(frames) * 48000.0 / 44100.0)
	assert.InDelta(t, wantFrames, gotFrames, 2)
}

func TestSincResamplerResetClearsOverlap(t *testing.T) {
	from := audio.StreamParams{Channels: 1, SampleRate: audio.Rate44100, BitsPerSample: audio.Bits16}
	to := audio.StreamParams{Channels: 1, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewSincResampler(from, to)
	r.Convert(make([]byte, 2000))
	r.Reset()
	for _, v := range r.overlap {
		assert.Zero(t, v)
	}
}

func TestSincResamplerFlushDrainsOverlapAndIsIdempotent(t *testing.T) {
	from := audio.StreamParams{Channels: 1, SampleRate: audio.Rate44100, BitsPerSample: audio.Bits16}
	to := audio.StreamParams{Channels: 1, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewSincResampler(from, to)
	in := make([]byte, 2000)
	for i := 0; i < len(in)/2; i++ {
		in[i*2] = byte(i)
	}
	r.Convert(in)

	tail := r.Convert(nil)
	assert.NotEmpty(t, tail, "flush should emit the carried delay line's remaining samples")
	for _, v := range r.overlap {
		assert.Zero(t, v, "flush should clear the overlap it drained")
	}

	again := r.Convert(nil)
	assert.Empty(t, again, "a second flush after the overlap is drained should be a no-op")
}

func TestSincResamplerFlushOnFreshResamplerIsNoOp(t *testing.T) {
	from := audio.StreamParams{Channels: 2, SampleRate: audio.Rate44100, BitsPerSample: audio.Bits16}
	to := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	r := NewSincResampler(from, to)
	assert.Empty(t, r.Convert(nil))
}
