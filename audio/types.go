// Package audio implements the real-time rendering core: device
// enumeration, format negotiation, the render client and its paired byte
// pipe. It does not know how to decode anything — it only knows how to get
// interleaved PCM bytes onto a device.
package audio

import (
	"errors"
	"fmt"
)

// SampleRate is one of the fixed set of rates the negotiator will ever ask
// a device to accept.
type SampleRate int

const (
	Rate44100 SampleRate = 44100
	Rate48000 SampleRate = 48000
	Rate88200 SampleRate = 88200
	Rate96000 SampleRate = 96000
	Rate176400 SampleRate = 176400
	Rate192000 SampleRate = 192000
)

func (r SampleRate) String() string {
	return fmt.Sprintf("%dHz", int(r))
}

// BitsPerSample is one of the fixed set of sample widths this module
// understands.
type BitsPerSample int

const (
	Bits8  BitsPerSample = 8
	Bits16 BitsPerSample = 16
	Bits24 BitsPerSample = 24
	Bits32 BitsPerSample = 32
)

func (b BitsPerSample) String() string {
	return fmt.Sprintf("%d-bit", int(b))
}

// ShareMode selects exclusive (bit-perfect) or shared (mixed) device
// access.
type ShareMode int

const (
	ShareModeShared ShareMode = iota
	ShareModeExclusive
)

// StreamParams is the desired or negotiated wire format. It is immutable
// once returned from Negotiate.
type StreamParams struct {
	Channels      int
	SampleRate    SampleRate
	BitsPerSample BitsPerSample
	// BufferLength is in 100-ns units; 0 means "device default".
	BufferLength int64
	Exclusive    bool
}

// BlockAlign is the number of bytes per audio frame: channels × bytes per
// sample.
func (p StreamParams) BlockAlign() int {
	return p.Channels * int(p.BitsPerSample) / 8
}

// BytesPerSecond is the nominal byte rate of the stream at this format.
func (p StreamParams) BytesPerSecond() int {
	return int(p.SampleRate) * p.BlockAlign()
}

// Capabilities is the set of sample rates and bit depths a device reports
// as acceptable.
type Capabilities struct {
	SampleRates    []SampleRate
	BitsPerSamples []BitsPerSample
}

// DefaultCapabilities mirrors the reference implementation's
// Capabilities::default(): the WASAPI backend falls back to it when its
// per-format probe finds no supported rate or bit depth.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		SampleRates:    []SampleRate{Rate44100, Rate48000, Rate88200, Rate96000, Rate176400, Rate192000},
		BitsPerSamples: []BitsPerSample{Bits16, Bits24, Bits32},
	}
}

func (c Capabilities) hasSampleRate(r SampleRate) bool {
	for _, v := range c.SampleRates {
		if v == r {
			return true
		}
	}
	return false
}

func (c Capabilities) hasBitsPerSample(b BitsPerSample) bool {
	for _, v := range c.BitsPerSamples {
		if v == b {
			return true
		}
	}
	return false
}

// Adjust implements the format adjustment law of spec §4.2: keep the
// requested rate/depth if the device supports it, otherwise fall back to
// the highest supported value on that axis. Channels are never adjusted.
func (c Capabilities) Adjust(params StreamParams) (StreamParams, error) {
	if len(c.SampleRates) == 0 || len(c.BitsPerSamples) == 0 {
		return params, fmt.Errorf("audio: %w: device reports no capabilities", ErrFormatUnsupported)
	}
	adjusted := params
	if !c.hasSampleRate(params.SampleRate) {
		adjusted.SampleRate = c.SampleRates[0]
		for _, r := range c.SampleRates[1:] {
			if r > adjusted.SampleRate {
				adjusted.SampleRate = r
			}
		}
	}
	if !c.hasBitsPerSample(params.BitsPerSample) {
		adjusted.BitsPerSample = c.BitsPerSamples[0]
		for _, b := range c.BitsPerSamples[1:] {
			if b > adjusted.BitsPerSample {
				adjusted.BitsPerSample = b
			}
		}
	}
	return adjusted, nil
}

// DeviceDescriptor is an opaque, enumeration-stable identity for a render
// endpoint. Valid until the next call to Host.Devices.
type DeviceDescriptor struct {
	Index     int
	ID        string
	Name      string
	IsDefault bool
}

// Command is the single-slot, cross-task writable state the render loop
// polls at every iteration boundary. Held as an atomic int32 behind the
// typed helpers in command.go.
type Command int32

const (
	CommandStart Command = iota
	CommandPause
	CommandStop
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandPause:
		return "pause"
	case CommandStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Error kinds from spec §7. These are sentinels, not types: callers use
// errors.Is against them and fmt.Errorf("...: %w", ...) to add context.
var (
	ErrEnumerationFailed  = errors.New("audio: endpoint enumeration failed")
	ErrNotFound           = errors.New("audio: no such device")
	ErrDeviceUnavailable  = errors.New("audio: device unavailable")
	ErrFormatUnsupported  = errors.New("audio: format not supported")
	ErrInitializeFailed   = errors.New("audio: client initialize failed")
	ErrWrongSize          = errors.New("audio: write payload size mismatch")
	ErrPipeClosed         = errors.New("audio: pipe closed")
	ErrTimedOut           = errors.New("audio: wait timed out")
)
