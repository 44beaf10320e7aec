package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCapabilitiesAdjustKeepsSupportedFormat(t *testing.T) {
	caps := DefaultCapabilities()
	params := StreamParams{Channels: 2, SampleRate: Rate48000, BitsPerSample: Bits16}
	adjusted, err := caps.Adjust(params)
	assert.NoError(t, err)
	assert.Equal(t, params, adjusted)
}

func TestCapabilitiesAdjustFallsBackToHighest(t *testing.T) {
	caps := Capabilities{
		SampleRates:    []SampleRate{Rate44100, Rate48000},
		BitsPerSamples: []BitsPerSample{Bits16, Bits24},
	}
	params := StreamParams{Channels: 2, SampleRate: Rate192000, BitsPerSample: Bits32}
	adjusted, err := caps.Adjust(params)
	assert.NoError(t, err)
	assert.Equal(t, Rate48000, adjusted.SampleRate)
	assert.Equal(t, Bits24, adjusted.BitsPerSample)
	assert.Equal(t, params.Channels, adjusted.Channels)
}

func TestCapabilitiesAdjustEmptyIsFormatUnsupported(t *testing.T) {
	_, err := Capabilities{}.Adjust(StreamParams{Channels: 2, SampleRate: Rate48000, BitsPerSample: Bits16})
	assert.True(t, errors.Is(err, ErrFormatUnsupported))
}

// TestAdjustLawProperty is the format-adjustment law from the testable
// properties: the adjusted rate and bit depth are always members of the
// device's own capability set, and channels are never touched.
func TestAdjustLawProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rateOptions := []SampleRate{Rate44100, Rate48000, Rate88200, Rate96000, Rate176400, Rate192000}
		bitOptions := []BitsPerSample{Bits16, Bits24, Bits32}

		n := rapid.IntRange(1, len(rateOptions)).Draw(t, "nRates")
		m := rapid.IntRange(1, len(bitOptions)).Draw(t, "nBits")
		caps := Capabilities{
			SampleRates:    append([]SampleRate{}, rateOptions[:n]...),
			BitsPerSamples: append([]BitsPerSample{}, bitOptions[:m]...),
		}

		params := StreamParams{
			Channels:      rapid.IntRange(1, 8).Draw(t, "channels"),
			SampleRate:    SampleRate(rapid.SampledFrom(rateOptions).Draw(t, "rate")),
			BitsPerSample: BitsPerSample(rapid.SampledFrom(bitOptions).Draw(t, "bits")),
		}

		adjusted, err := caps.Adjust(params)
		if err != nil {
			t.Fatalf("unexpected error with non-empty capabilities: %v", err)
		}
		if adjusted.Channels != params.Channels {
			t.Fatalf("channels were adjusted: got %d, want %d", adjusted.Channels, params.Channels)
		}
		if !caps.hasSampleRate(adjusted.SampleRate) {
			t.Fatalf("adjusted rate %v not in capability set %v", adjusted.SampleRate, caps.SampleRates)
		}
		if !caps.hasBitsPerSample(adjusted.BitsPerSample) {
			t.Fatalf("adjusted bits %v not in capability set %v", adjusted.BitsPerSample, caps.BitsPerSamples)
		}
	})
}
