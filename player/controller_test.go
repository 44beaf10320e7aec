package player

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PapyKahan/rhap/audio"
	"github.com/PapyKahan/rhap/decode"
)

type fakeHost struct {
	desc audio.DeviceDescriptor
	dev  *fakeDevice
}

func newFakeHost() *fakeHost {
	desc := audio.DeviceDescriptor{Index: 0, ID: "fake", Name: "Fake Device", IsDefault: true}
	return &fakeHost{desc: desc, dev: &fakeDevice{desc: desc}}
}

func (h *fakeHost) Devices() ([]audio.DeviceDescriptor, error) { return []audio.DeviceDescriptor{h.desc}, nil }
func (h *fakeHost) DefaultDevice() (audio.DeviceDescriptor, error) { return h.desc, nil }
func (h *fakeHost) DeviceByIndex(i int) (audio.DeviceDescriptor, error) {
	if i != 0 {
		return audio.DeviceDescriptor{}, audio.ErrNotFound
	}
	return h.desc, nil
}
func (h *fakeHost) Open(desc audio.DeviceDescriptor) (audio.Device, error) { return h.dev, nil }
func (h *fakeHost) Close() error                                          { return nil }

type fakeDevice struct {
	desc audio.DeviceDescriptor
	mu   sync.Mutex
	live *mockSession
}

func (d *fakeDevice) Descriptor() audio.DeviceDescriptor { return d.desc }
func (d *fakeDevice) Capabilities() (audio.Capabilities, error) { return audio.DefaultCapabilities(), nil }

func (d *fakeDevice) OpenSession(params audio.StreamParams, mode audio.ShareMode) (audio.RenderSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := newMockSession(params, 4)
	d.live = s
	return s, nil
}

func (d *fakeDevice) Close() error { return nil }

// fakeSource is a tiny decode.Source that emits a handful of PCM chunks
// then EndOfStream.
type fakeSource struct {
	format audio.StreamParams
	chunks [][]byte
	idx    int
}

func newFakeSource(chunks int, bytesPerChunk int) *fakeSource {
	format := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	data := make([][]byte, chunks)
	for i := range data {
		buf := make([]byte, bytesPerChunk)
		for j := range buf {
			buf[j] = byte(i*bytesPerChunk + j)
		}
		data[i] = buf
	}
	return &fakeSource{format: format, chunks: data}
}

func (s *fakeSource) Format() audio.StreamParams { return s.format }
func (s *fakeSource) Metadata() decode.Metadata   { return decode.Metadata{Title: "fake track"} }

func (s *fakeSource) Next() (decode.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return decode.Chunk{}, fmt.Errorf("decode: %w", &decode.DecodeError{Kind: decode.EndOfStream, Err: io.EOF})
	}
	c := decode.Chunk{PCM: s.chunks[s.idx]}
	s.idx++
	return c, nil
}

func (s *fakeSource) Reset() error { s.idx = 0; return nil }
func (s *fakeSource) Close() error { return nil }

type fakeTrack struct {
	source *fakeSource
}

func (t *fakeTrack) Open() (decode.Source, error) { return t.source, nil }
func (t *fakeTrack) Path() string                 { return "fake.flac" }

func TestControllerStopBeforePlayIsNoOp(t *testing.T) {
	c := NewController(newFakeHost())
	assert.NotPanics(t, func() { c.Stop() })
}

func TestControllerPlayWithoutDeviceFails(t *testing.T) {
	c := NewController(newFakeHost())
	err := c.Play(&fakeTrack{source: newFakeSource(3, 16)})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestControllerPlayThenReplaceAbortsPriorTrack(t *testing.T) {
	host := newFakeHost()
	c := NewController(host)
	assert.NoError(t, c.SelectDevice(nil))

	track1 := &fakeTrack{source: newFakeSource(1000, 16)}
	assert.NoError(t, c.Play(track1))
	time.Sleep(20 * time.Millisecond)

	track2 := &fakeTrack{source: newFakeSource(2, 16)}
	assert.NoError(t, c.Play(track2)) // E5: replacing A with B must not deadlock or panic

	assert.Eventually(t, func() bool {
		return !c.Status().IsStreaming()
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop() // idempotent
}

func TestControllerPlayToEndOfStreamFlipsStreamingFalse(t *testing.T) {
	host := newFakeHost()
	c := NewController(host)
	assert.NoError(t, c.SelectDevice(nil))

	track := &fakeTrack{source: newFakeSource(5, 16)}
	assert.NoError(t, c.Play(track))
	assert.True(t, c.Status().IsStreaming())

	assert.Eventually(t, func() bool {
		return !c.Status().IsStreaming()
	}, time.Second, 5*time.Millisecond)

	c.Stop()
}
