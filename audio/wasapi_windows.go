//go:build windows

package audio

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca"
	"golang.org/x/sys/windows"
)

// wasapiHost is the Windows Host backend: it owns the COM apartment for
// the calling goroutine and an IMMDeviceEnumerator, per spec §4.1 (C1).
type wasapiHost struct {
	enumerator *wca.IMMDeviceEnumerator
	devices    []*wca.IMMDevice
}

// NewHost returns the platform Host. On Windows this initializes COM on
// the calling goroutine (apartment-threaded, matching the reference
// implementation) and must be called from the goroutine that will drive
// the render loop, since COM state is thread-affine.
func NewHost() (Host, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			return nil, fmt.Errorf("audio: %w: CoInitializeEx: %v", ErrInitializeFailed, err)
		}
	}
	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
	}
	return &wasapiHost{enumerator: de}, nil
}

func (h *wasapiHost) refresh() error {
	for _, d := range h.devices {
		d.Release()
	}
	h.devices = nil

	var collection *wca.IMMDeviceCollection
	if err := h.enumerator.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &collection); err != nil {
		return fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
	}
	defer collection.Release()

	var count uint32
	if err := collection.GetCount(&count); err != nil {
		return fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
	}
	h.devices = make([]*wca.IMMDevice, 0, count)
	for i := uint32(0); i < count; i++ {
		var dev *wca.IMMDevice
		if err := collection.Item(i, &dev); err != nil {
			return fmt.Errorf("audio: %w: %v", ErrEnumerationFailed, err)
		}
		h.devices = append(h.devices, dev)
	}
	return nil
}

func deviceName(dev *wca.IMMDevice) string {
	var ps *wca.IPropertyStore
	if err := dev.OpenPropertyStore(wca.STGM_READ, &ps); err != nil {
		return "unknown device"
	}
	defer ps.Release()
	var pv wca.PROPVARIANT
	if err := ps.GetValue(&wca.PKEY_Device_FriendlyName, &pv); err != nil {
		return "unknown device"
	}
	return pv.String()
}

func deviceID(dev *wca.IMMDevice) string {
	id, err := dev.GetId()
	if err != nil {
		return ""
	}
	return id
}

func (h *wasapiHost) Devices() ([]DeviceDescriptor, error) {
	if err := h.refresh(); err != nil {
		return nil, err
	}
	var defaultID string
	var def *wca.IMMDevice
	if err := h.enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &def); err == nil {
		defaultID = deviceID(def)
		def.Release()
	}
	out := make([]DeviceDescriptor, 0, len(h.devices))
	for i, dev := range h.devices {
		id := deviceID(dev)
		out = append(out, DeviceDescriptor{
			Index:     i,
			ID:        id,
			Name:      deviceName(dev),
			IsDefault: id != "" && id == defaultID,
		})
	}
	return out, nil
}

func (h *wasapiHost) DefaultDevice() (DeviceDescriptor, error) {
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
	return DeviceDescriptor{}, fmt.Errorf("audio: %w: no render endpoints", ErrNotFound)
}

func (h *wasapiHost) DeviceByIndex(i int) (DeviceDescriptor, error) {
	devices, err := h.Devices()
	if err != nil {
		return DeviceDescriptor{}, err
	}
	if i < 0 || i >= len(devices) {
		return DeviceDescriptor{}, fmt.Errorf("audio: %w: index %d", ErrNotFound, i)
	}
	return devices[i], nil
}

func (h *wasapiHost) Open(desc DeviceDescriptor) (Device, error) {
	if desc.Index < 0 || desc.Index >= len(h.devices) {
		if err := h.refresh(); err != nil {
			return nil, err
		}
	}
	if desc.Index < 0 || desc.Index >= len(h.devices) {
		return nil, fmt.Errorf("audio: %w: %s", ErrNotFound, desc.Name)
	}
	dev := h.devices[desc.Index]

	var ac *wca.IAudioClient
	if err := dev.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
		return nil, fmt.Errorf("audio: %w: Activate: %v", ErrDeviceUnavailable, err)
	}
	return &wasapiDevice{desc: desc, mmDevice: dev, client: ac}, nil
}

func (h *wasapiHost) Close() error {
	for _, d := range h.devices {
		d.Release()
	}
	h.devices = nil
	if h.enumerator != nil {
		h.enumerator.Release()
		h.enumerator = nil
	}
	ole.CoUninitialize()
	return nil
}

// wasapiDevice wraps an activated IAudioClient. Capabilities probes every
// rate/depth pair of the fixed tables with a two-channel, shared-mode
// IsFormatSupported call rather than trusting GetMixFormat; a pair counts
// as supported when the device accepts it or proposes a closest match.
type wasapiDevice struct {
	desc     DeviceDescriptor
	mmDevice *wca.IMMDevice
	client   *wca.IAudioClient
}

// reactivate drops the current IAudioClient and activates a fresh one on
// the same endpoint, required by the WASAPI contract after a failed
// Initialize call on the same interface.
func (d *wasapiDevice) reactivate() error {
	if d.client != nil {
		d.client.Release()
		d.client = nil
	}
	var ac *wca.IAudioClient
	if err := d.mmDevice.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
		return fmt.Errorf("audio: %w: Activate: %v", ErrDeviceUnavailable, err)
	}
	d.client = ac
	return nil
}

func (d *wasapiDevice) Descriptor() DeviceDescriptor { return d.desc }

func (d *wasapiDevice) Capabilities() (Capabilities, error) {
	caps := Capabilities{}
	probe := StreamParams{Channels: 2, Exclusive: false}
	for _, rate := range []SampleRate{Rate44100, Rate48000, Rate88200, Rate96000, Rate176400, Rate192000} {
		for _, bits := range []BitsPerSample{Bits16, Bits24, Bits32} {
			p := probe
			p.SampleRate = rate
			p.BitsPerSample = bits
			wf := BuildWaveFormat(p)
			supported, closest, err := d.isFormatSupported(wf, wca.AUDCLNT_SHAREMODE_SHARED)
			if err != nil {
				continue
			}
			if supported || closest != nil {
				addRateOnce(&caps.SampleRates, rate)
				addBitsOnce(&caps.BitsPerSamples, bits)
			}
		}
	}
	if len(caps.SampleRates) == 0 || len(caps.BitsPerSamples) == 0 {
		return DefaultCapabilities(), nil
	}
	return caps, nil
}

func addRateOnce(s *[]SampleRate, r SampleRate) {
	for _, v := range *s {
		if v == r {
			return
		}
	}
	*s = append(*s, r)
}

func addBitsOnce(s *[]BitsPerSample, b BitsPerSample) {
	for _, v := range *s {
		if v == b {
			return
		}
	}
	*s = append(*s, b)
}

func toWaveFormatExtensible(wf WaveFormat) *wca.WAVEFORMATEXTENSIBLE {
	wfx := &wca.WAVEFORMATEXTENSIBLE{}
	wfx.Format.WFormatTag = wca.WAVE_FORMAT_EXTENSIBLE
	wfx.Format.NChannels = uint16(wf.Channels)
	wfx.Format.NSamplesPerSec = uint32(wf.SampleRate)
	wfx.Format.WBitsPerSample = uint16(wf.BitsPerSample)
	wfx.Format.NBlockAlign = uint16(wf.BlockAlign)
	wfx.Format.NAvgBytesPerSec = uint32(wf.BytesPerSecond)
	wfx.Format.CbSize = 22
	wfx.Samples = uint16(wf.BitsPerSample)
	wfx.ChannelMask = wf.ChannelMask
	if wf.IEEEFloat {
		wfx.SubFormat = wca.KSDATAFORMAT_SUBTYPE_IEEE_FLOAT
	} else {
		wfx.SubFormat = wca.KSDATAFORMAT_SUBTYPE_PCM
	}
	return wfx
}

func (d *wasapiDevice) isFormatSupported(wf WaveFormat, mode wca.AUDCLNT_SHAREMODE) (bool, *wca.WAVEFORMATEX, error) {
	wfx := toWaveFormatExtensible(wf)
	var closest *wca.WAVEFORMATEX
	err := d.client.IsFormatSupported(mode, &wfx.Format, &closest)
	if err == nil {
		return true, nil, nil
	}
	if closest != nil {
		return false, closest, nil
	}
	return false, nil, err
}

// OpenSession is C2+C3: negotiate the format against the device's
// capability table, then initialize an exclusive or shared client,
// retrying once on AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED as spec §4.3
// requires.
func (d *wasapiDevice) OpenSession(params StreamParams, mode ShareMode) (RenderSession, error) {
	caps, err := d.Capabilities()
	if err != nil {
		return nil, err
	}
	negotiated, err := caps.Adjust(params)
	if err != nil {
		return nil, err
	}
	negotiated.Exclusive = mode == ShareModeExclusive

	shareMode := wca.AUDCLNT_SHAREMODE_SHARED
	if negotiated.Exclusive {
		shareMode = wca.AUDCLNT_SHAREMODE_EXCLUSIVE
	}

	wf := BuildWaveFormat(negotiated)
	if negotiated.Exclusive {
		supported, _, ferr := d.isFormatSupported(wf, shareMode)
		if !supported {
			if ferr != nil && !wf.eligibleForSimplifiedRetry() {
				return nil, fmt.Errorf("audio: %w: %v", ErrFormatUnsupported, ferr)
			}
			wf = wf.simplified()
			supported, _, ferr = d.isFormatSupported(wf, shareMode)
			if !supported {
				return nil, fmt.Errorf("audio: %w: %v", ErrFormatUnsupported, ferr)
			}
		}
	}

	var defaultPeriod, minPeriod int64
	if err := d.client.GetDevicePeriod(&defaultPeriod, &minPeriod); err != nil {
		return nil, fmt.Errorf("audio: %w: GetDevicePeriod: %v", ErrInitializeFailed, err)
	}
	period := defaultPeriod
	if negotiated.BufferLength > 0 {
		period = negotiated.BufferLength
	}
	if negotiated.Exclusive {
		period = AlignPeriod(period, minPeriod, wf.SampleRate, wf.BlockAlign, 128)
	}

	wfx := toWaveFormatExtensible(wf)
	streamFlags := uint32(wca.AUDCLNT_STREAMFLAGS_EVENTCALLBACK)
	initErr := d.client.Initialize(shareMode, streamFlags, period, period, &wfx.Format, nil)
	if initErr != nil {
		if !isBufferSizeNotAligned(initErr) {
			return nil, fmt.Errorf("audio: %w: Initialize: %v", ErrInitializeFailed, initErr)
		}

		var frames uint32
		if gbErr := d.client.GetBufferSize(&frames); gbErr != nil {
			return nil, fmt.Errorf("audio: %w: Initialize: %v", ErrInitializeFailed, initErr)
		}
		period = RetryPeriodFromBufferSize(int(frames), wf.SampleRate)

		if err := d.reactivate(); err != nil {
			return nil, err
		}
		if retryErr := d.client.Initialize(shareMode, streamFlags, period, period, &wfx.Format, nil); retryErr != nil {
			return nil, fmt.Errorf("audio: %w: Initialize retry: %v", ErrInitializeFailed, retryErr)
		}
	}

	event, err := windows.CreateEventEx(nil, nil, 0, windows.EVENT_MODIFY_STATE|windows.SYNCHRONIZE)
	if err != nil {
		return nil, fmt.Errorf("audio: %w: CreateEventEx: %v", ErrInitializeFailed, err)
	}
	if err := d.client.SetEventHandle(uintptr(event)); err != nil {
		windows.CloseHandle(event)
		return nil, fmt.Errorf("audio: %w: SetEventHandle: %v", ErrInitializeFailed, err)
	}

	var renderClient *wca.IAudioRenderClient
	if err := d.client.GetService(wca.IID_IAudioRenderClient, &renderClient); err != nil {
		windows.CloseHandle(event)
		return nil, fmt.Errorf("audio: %w: GetService: %v", ErrInitializeFailed, err)
	}

	return &wasapiSession{
		client:       d.client,
		renderClient: renderClient,
		params:       negotiated,
		event:        event,
	}, nil
}

func isBufferSizeNotAligned(err error) bool {
	oleErr, ok := err.(*ole.OleError)
	return ok && uint32(oleErr.Code()) == wca.AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED
}

func (d *wasapiDevice) Close() error {
	if d.client != nil {
		d.client.Release()
		d.client = nil
	}
	return nil
}

// wasapiSession is C3's concrete render client: one IAudioClient plus its
// paired IAudioRenderClient and event handle, event-driven per spec §4.3.
type wasapiSession struct {
	client       *wca.IAudioClient
	renderClient *wca.IAudioRenderClient
	params       StreamParams
	event        windows.Handle
	started      bool
}

func (s *wasapiSession) Params() StreamParams { return s.params }
func (s *wasapiSession) BlockAlign() int      { return s.params.BlockAlign() }

func (s *wasapiSession) AvailableFrames() (int, error) {
	var bufferFrames uint32
	if err := s.client.GetBufferSize(&bufferFrames); err != nil {
		return 0, fmt.Errorf("audio: GetBufferSize: %w", err)
	}
	if s.params.Exclusive {
		return int(bufferFrames), nil
	}
	var padding uint32
	if err := s.client.GetCurrentPadding(&padding); err != nil {
		return 0, fmt.Errorf("audio: GetCurrentPadding: %w", err)
	}
	return int(bufferFrames - padding), nil
}

func (s *wasapiSession) Write(frames int, payload []byte) error {
	if len(payload) != frames*s.BlockAlign() {
		return ErrWrongSize
	}
	var buf *byte
	if err := s.renderClient.GetBuffer(uint32(frames), &buf); err != nil {
		return fmt.Errorf("audio: GetBuffer: %w", err)
	}
	dst := unsafe.Slice(buf, len(payload))
	copy(dst, payload)
	if err := s.renderClient.ReleaseBuffer(uint32(frames), 0); err != nil {
		return fmt.Errorf("audio: ReleaseBuffer: %w", err)
	}
	return nil
}

func (s *wasapiSession) Start() error {
	if s.started {
		return nil
	}
	if err := s.client.Start(); err != nil {
		return fmt.Errorf("audio: Start: %w", err)
	}
	s.started = true
	return nil
}

func (s *wasapiSession) Stop() error {
	if !s.started {
		return nil
	}
	if err := s.client.Stop(); err != nil {
		return fmt.Errorf("audio: Stop: %w", err)
	}
	s.started = false
	return nil
}

func (s *wasapiSession) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(timeout / time.Millisecond)
	result, err := windows.WaitForSingleObject(s.event, ms)
	if err != nil {
		return false, fmt.Errorf("audio: WaitForSingleObject: %w", err)
	}
	switch result {
	case uint32(windows.WAIT_OBJECT_0):
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		return false, fmt.Errorf("audio: %w: WaitForSingleObject result %d", ErrTimedOut, result)
	}
}

func (s *wasapiSession) Drop() error {
	s.Stop()
	if s.renderClient != nil {
		s.renderClient.Release()
		s.renderClient = nil
	}
	if s.event != 0 {
		windows.CloseHandle(s.event)
		s.event = 0
	}
	return nil
}
