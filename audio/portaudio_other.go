//go:build !windows

package audio

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// portaudioHost is the non-Windows Host backend of spec §9: there is no
// WASAPI here, so rendering always goes through PortAudio in shared mode
// via its blocking-write API, grounded on the teacher's
// audio/microphone.go use of the same package for input.
type portaudioHost struct {
	initialized bool
}

// NewHost returns the platform Host. On non-Windows builds this
// initializes PortAudio once per process.
func NewHost() (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: %w: portaudio.Initialize: %v", ErrInitializeFailed, err)
	}
	return &portaudioHost{initialized: true}, nil
}

func (h *portaudioHost) Devices() ([]DeviceDescriptor, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
	}
	defaultHost, err := portaudio.DefaultHostApi()
	var defaultOut *portaudio.DeviceInfo
	if err == nil {
		defaultOut = defaultHost.DefaultOutputDevice
	}
	out := make([]DeviceDescriptor, 0, len(devices))
	idx := 0
	for _, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, DeviceDescriptor{
			Index:     idx,
			ID:        d.Name,
			Name:      d.Name,
			IsDefault: defaultOut != nil && d.Name == defaultOut.Name,
		})
		idx++
	}
	return out, nil
}

func (h *portaudioHost) DefaultDevice() (DeviceDescriptor, error) {
	devices, err := h.Devices()
	if err != nil {
		return DeviceDescriptor{}, err
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return DeviceDescriptor{}, fmt.Errorf("audio: %w: no output devices", ErrNotFound)
}

func (h *portaudioHost) DeviceByIndex(i int) (DeviceDescriptor, error) {
	devices, err := h.Devices()
	if err != nil {
		return DeviceDescriptor{}, err
	}
	if i < 0 || i >= len(devices) {
		return DeviceDescriptor{}, fmt.Errorf("audio: %w: index %d", ErrNotFound, i)
	}
	return devices[i], nil
}

func (h *portaudioHost) Open(desc DeviceDescriptor) (Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
	}
	for _, d := range devices {
		if d.Name == desc.ID {
			return &portaudioDevice{desc: desc, info: d}, nil
		}
	}
	return nil, fmt.Errorf("audio: %w: %s", ErrNotFound, desc.Name)
}

func (h *portaudioHost) Close() error {
	if !h.initialized {
		return nil
	}
	h.initialized = false
	return portaudio.Terminate()
}

// portaudioDevice always reports 16-bit capability: PortAudio's blocking
// write API is typed per sample format, and 16-bit integer PCM is the one
// format every host API in the library's test matrix accepts, so the
// fallback backend standardizes on it rather than probing per-device.
type portaudioDevice struct {
	desc DeviceDescriptor
	info *portaudio.DeviceInfo
}

func (d *portaudioDevice) Descriptor() DeviceDescriptor { return d.desc }

func (d *portaudioDevice) Capabilities() (Capabilities, error) {
	return Capabilities{
		SampleRates:    []SampleRate{Rate44100, Rate48000},
		BitsPerSamples: []BitsPerSample{Bits16},
	}, nil
}

func (d *portaudioDevice) OpenSession(params StreamParams, mode ShareMode) (RenderSession, error) {
	caps, err := d.Capabilities()
	if err != nil {
		return nil, err
	}
	negotiated, err := caps.Adjust(params)
	if err != nil {
		return nil, err
	}
	negotiated.Exclusive = false // shared-mode only on this backend

	// Fixed buffer size; params.BufferLength is not used by this backend.
	const framesPerBuffer = 1024
	buf := make([]int16, framesPerBuffer*negotiated.Channels)

	streamParams := portaudio.LowLatencyParameters(nil, d.info)
	streamParams.Output.Channels = negotiated.Channels
	streamParams.SampleRate = float64(negotiated.SampleRate)
	streamParams.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(streamParams, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: %w: OpenStream: %v", ErrInitializeFailed, err)
	}

	return &portaudioSession{
		stream: stream,
		buf:    buf,
		params: negotiated,
		ready:  make(chan struct{}, 1),
	}, nil
}

func (d *portaudioDevice) Close() error { return nil }

// portaudioSession drives PortAudio's blocking Write: Wait is synthesized
// from a timer at the buffer's nominal duration, since the blocking API
// has no native "ready" event the way WASAPI's does.
type portaudioSession struct {
	stream  *portaudio.Stream
	buf     []int16
	params  StreamParams
	started bool
	ready   chan struct{}
}

func (s *portaudioSession) Params() StreamParams { return s.params }
func (s *portaudioSession) BlockAlign() int       { return s.params.BlockAlign() }

func (s *portaudioSession) AvailableFrames() (int, error) {
	return len(s.buf) / s.params.Channels, nil
}

func (s *portaudioSession) Write(frames int, payload []byte) error {
	if len(payload) != frames*s.BlockAlign() {
		return ErrWrongSize
	}
	samples := frames * s.params.Channels
	if samples > len(s.buf) {
		return ErrWrongSize
	}
	for i := 0; i < samples; i++ {
		s.buf[i] = int16(binary.LittleEndian.Uint16(payload[i*2 : i*2+2]))
	}
	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("audio: stream.Write: %w", err)
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

func (s *portaudioSession) Start() error {
	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("audio: stream.Start: %w", err)
	}
	s.started = true
	return nil
}

func (s *portaudioSession) Stop() error {
	if !s.started {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("audio: stream.Stop: %w", err)
	}
	s.started = false
	return nil
}

func (s *portaudioSession) Wait(timeout time.Duration) (bool, error) {
	select {
	case <-s.ready:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (s *portaudioSession) Drop() error {
	s.Stop()
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}
