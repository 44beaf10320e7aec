package decode

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/PapyKahan/rhap/audio"
)

// Resampler is C5: converts PCM from a source's native format to the
// device's negotiated StreamParams, carrying state across calls so a
// filter's tail isn't lost between chunks. A zero-length input flushes
// whatever the implementation is still holding.
type Resampler interface {
	// Convert resamples one chunk of interleaved PCM from in's source
	// format to the configured output format.
	Convert(in []byte) []byte
	// Reset clears any carried-over filter state, for use after a seek.
	Reset()
}

// NewResampler picks PassthroughResampler when from and to already match
// (spec §4.5's bypass case) and SincResampler otherwise.
func NewResampler(from, to audio.StreamParams) Resampler {
	if from.SampleRate == to.SampleRate && from.BitsPerSample == to.BitsPerSample && from.Channels == to.Channels {
		return &PassthroughResampler{}
	}
	return NewSincResampler(from, to)
}

// PassthroughResampler returns its input unchanged.
type PassthroughResampler struct{}

func (PassthroughResampler) Convert(in []byte) []byte { return in }
func (PassthroughResampler) Reset()                   {}

// sincTaps is the half-length of the windowed-sinc filter kernel: longer
// taps trade latency for a sharper stopband.
const sincTaps = 32

// SincResampler is a windowed-sinc-kernel resampler: a Hamming-windowed
// sinc kernel defines the lowpass/interpolation filter, and per-block
// convolution goes through an FFT rather than a direct time-domain loop.
// An overlap-save delay line of the previous block's tail samples is kept
// so the kernel's finite support doesn't introduce a click at block
// boundaries — the "stateful across calls" behavior spec §4.5 requires.
type SincResampler struct {
	from, to audio.StreamParams
	kernel   []float64
	overlap  []float64 // per channel, carried convolution tail
	channels int
}

// NewSincResampler builds the filter kernel once: a sinc function cut at
// the lower of the two rates (so it low-passes on both upsampling and
// downsampling) multiplied by a Hamming window.
func NewSincResampler(from, to audio.StreamParams) *SincResampler {
	ratio := float64(to.SampleRate) / float64(from.SampleRate)
	cutoff := ratio
	if cutoff > 1 {
		cutoff = 1
	}
	n := 2*sincTaps + 1
	kernel := make([]float64, n)
	win := window.Hamming(n)
	sum := 0.0
	for i := 0; i < n; i++ {
		x := float64(i-sincTaps) * cutoff
		var s float64
		if x == 0 {
			s = cutoff
		} else {
			s = cutoff * math.Sin(math.Pi*x) / (math.Pi * x)
		}
		kernel[i] = s * win[i]
		sum += kernel[i]
	}
	if sum != 0 {
		for i := range kernel {
			kernel[i] /= sum
		}
	}
	return &SincResampler{
		from:     from,
		to:       to,
		kernel:   kernel,
		overlap:  make([]float64, from.Channels*2*sincTaps),
		channels: from.Channels,
	}
}

// Convert deinterleaves in into per-channel float64 samples, convolves
// each channel's series (prepended with the carried overlap) against the
// kernel via FFT multiplication, decimates/interpolates to the target
// rate by linear resampling of the filtered series, and packs the result
// back to the target bit depth.
func (r *SincResampler) Convert(in []byte) []byte {
	bytesPerSample := int(r.from.BitsPerSample) / 8
	if bytesPerSample == 0 {
		return nil
	}
	if len(in) == 0 {
		return r.flush()
	}
	frameBytes := bytesPerSample * r.channels
	nFrames := len(in) / frameBytes
	if nFrames == 0 {
		return nil
	}

	perChannel := make([][]float64, r.channels)
	overlapLen := 2 * sincTaps
	for ch := 0; ch < r.channels; ch++ {
		series := make([]float64, overlapLen+nFrames)
		copy(series, r.overlap[ch*overlapLen:(ch+1)*overlapLen])
		for i := 0; i < nFrames; i++ {
			off := (i*r.channels + ch) * bytesPerSample
			series[overlapLen+i] = unpackSample(in[off:off+bytesPerSample], int(r.from.BitsPerSample))
		}
		perChannel[ch] = convolveFFT(series, r.kernel)

		tailStart := len(series) - overlapLen
		copy(r.overlap[ch*overlapLen:(ch+1)*overlapLen], series[tailStart:])
	}

	ratio := float64(r.to.SampleRate) / float64(r.from.SampleRate)
	outFrames := int(float64(nFrames) * ratio)
	if outFrames == 0 {
		return nil
	}

	outBytesPerSample := int(r.to.BitsPerSample) / 8
	out := make([]byte, outFrames*r.channels*outBytesPerSample)
	for ch := 0; ch < r.channels; ch++ {
		filtered := perChannel[ch][sincTaps : sincTaps+nFrames]
		for i := 0; i < outFrames; i++ {
			srcPos := float64(i) / ratio
			lo := int(srcPos)
			frac := srcPos - float64(lo)
			var sample float64
			if lo+1 < len(filtered) {
				sample = filtered[lo]*(1-frac) + filtered[lo+1]*frac
			} else if lo < len(filtered) {
				sample = filtered[lo]
			}
			off := (i*r.channels + ch) * outBytesPerSample
			packFloatSample(out[off:off+outBytesPerSample], sample, int(r.to.BitsPerSample))
		}
	}
	return out
}

// flush drains the carried overlap delay line through the filter on a
// zero-sized Convert call, per spec §4.5's end-of-stream flush
// requirement, and clears the overlap afterward so a second flush call is
// a no-op rather than re-emitting the same tail. A delay line holding only
// zero samples, whether drained or filled from silent input, produces no
// output.
func (r *SincResampler) flush() []byte {
	overlapLen := 2 * sincTaps
	empty := true
	for _, v := range r.overlap {
		if v != 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}

	ratio := float64(r.to.SampleRate) / float64(r.from.SampleRate)
	outFrames := int(float64(overlapLen) * ratio)
	outBytesPerSample := int(r.to.BitsPerSample) / 8
	out := make([]byte, outFrames*r.channels*outBytesPerSample)

	for ch := 0; ch < r.channels; ch++ {
		series := make([]float64, overlapLen)
		copy(series, r.overlap[ch*overlapLen:(ch+1)*overlapLen])
		filtered := convolveFFT(series, r.kernel)

		for i := 0; i < outFrames; i++ {
			srcPos := float64(i) / ratio
			lo := int(srcPos)
			frac := srcPos - float64(lo)
			var sample float64
			if lo+1 < len(filtered) {
				sample = filtered[lo]*(1-frac) + filtered[lo+1]*frac
			} else if lo < len(filtered) {
				sample = filtered[lo]
			}
			off := (i*r.channels + ch) * outBytesPerSample
			packFloatSample(out[off:off+outBytesPerSample], sample, int(r.to.BitsPerSample))
		}
		for i := range r.overlap[ch*overlapLen : (ch+1)*overlapLen] {
			r.overlap[ch*overlapLen+i] = 0
		}
	}
	return out
}

// convolveFFT computes the linear convolution of series and kernel using
// go-dsp's real FFT, zero-padded to avoid circular wraparound.
func convolveFFT(series, kernel []float64) []float64 {
	n := nextPow2(len(series) + len(kernel) - 1)
	a := make([]float64, n)
	copy(a, series)
	b := make([]float64, n)
	copy(b, kernel)

	fa := fft.FFTReal(a)
	fb := fft.FFTReal(b)
	prod := make([]complex128, n)
	for i := range prod {
		prod[i] = fa[i] * fb[i]
	}
	result := fft.IFFT(prod)

	out := make([]float64, len(series))
	half := len(kernel) / 2
	for i := range out {
		idx := i + half
		if idx < len(result) {
			out[i] = real(result[idx])
		}
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Reset clears the carried overlap, used after a seek so the filter
// doesn't blend pre- and post-seek audio.
func (r *SincResampler) Reset() {
	for i := range r.overlap {
		r.overlap[i] = 0
	}
}

func unpackSample(b []byte, bits int) float64 {
	switch bits {
	case 16:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return float64(v) / 32768.0
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0
	case 32:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return float64(v) / 2147483648.0
	default:
		return 0
	}
}

func packFloatSample(dst []byte, sample float64, bits int) {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	switch bits {
	case 16:
		v := int16(sample * 32767)
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
	case 24:
		v := int32(sample * 8388607)
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
	case 32:
		v := int32(sample * 2147483647)
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
		dst[3] = byte(v >> 24)
	}
}
