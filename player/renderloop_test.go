package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PapyKahan/rhap/audio"
)

// mockSession is an instrumented audio.RenderSession used to exercise the
// render loop's invariants without any real device.
type mockSession struct {
	mu            sync.Mutex
	params        audio.StreamParams
	framesAvail   int
	written       []byte
	writeCalls    int
	sizeViolation bool
	started       bool
	startCount    int
	stopCount     int
	signalCh      chan struct{}
}

func newMockSession(params audio.StreamParams, framesAvail int) *mockSession {
	return &mockSession{params: params, framesAvail: framesAvail, signalCh: make(chan struct{}, 1)}
}

func (m *mockSession) Params() audio.StreamParams { return m.params }
func (m *mockSession) BlockAlign() int            { return m.params.BlockAlign() }

func (m *mockSession) AvailableFrames() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framesAvail, nil
}

func (m *mockSession) Write(frames int, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if len(payload) != frames*m.BlockAlign() {
		m.sizeViolation = true
		return audio.ErrWrongSize
	}
	m.written = append(m.written, payload...)
	m.mu.Unlock()
	m.signal() // a real device is ready again almost immediately after taking a buffer
	m.mu.Lock()
	return nil
}

func (m *mockSession) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.startCount++
	return nil
}

func (m *mockSession) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.stopCount++
	return nil
}

func (m *mockSession) Wait(timeout time.Duration) (bool, error) {
	select {
	case <-m.signalCh:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (m *mockSession) Drop() error { return nil }

func (m *mockSession) signal() {
	select {
	case m.signalCh <- struct{}{}:
	default:
	}
}

func TestRenderLoopNeverWritesPartialBuffer(t *testing.T) {
	params := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	session := newMockSession(params, 10) // need = 10*4 = 40 bytes
	pipe := audio.NewPipe(1024)
	cmd := audio.NewCommandCell()
	status := &CurrentTrackInfo{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		renderLoop(ctx, session, pipe, cmd, status)
		close(done)
	}()

	data := make([]byte, 400)
	for i := range data {
		data[i] = byte(i)
	}
	go func() {
		for i := 0; i < len(data); i += 7 {
			end := i + 7
			if end > len(data) {
				end = len(data)
			}
			pipe.SendBytes(data[i:end])
			session.signal()
			time.Sleep(time.Millisecond)
		}
		pipe.Close()
	}()

	time.Sleep(100 * time.Millisecond)
	cmd.Post(audio.CommandStop)
	cancel()
	<-done

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.False(t, session.sizeViolation, "render loop wrote a payload whose size did not match frames*blockAlign")
	for i := 0; i < len(session.written); i++ {
		assert.Equal(t, data[i], session.written[i], "byte %d reordered or corrupted", i)
	}
}

func TestRenderLoopStopsOnClosedPipeWithoutPartialWrite(t *testing.T) {
	params := audio.StreamParams{Channels: 2, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	session := newMockSession(params, 100) // need = 400 bytes, never satisfied
	pipe := audio.NewPipe(16)
	cmd := audio.NewCommandCell()
	status := &CurrentTrackInfo{}

	pipe.SendBytes([]byte{1, 2, 3})
	pipe.Close()

	ctx := context.Background()
	err := renderLoop(ctx, session, pipe, cmd, status)
	assert.NoError(t, err)

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Equal(t, 0, session.writeCalls, "a partial buffer should never reach Write")
	assert.False(t, status.IsStreaming())
}

func TestRenderLoopPauseStopsSessionWithinOneBufferPeriod(t *testing.T) {
	params := audio.StreamParams{Channels: 1, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	session := newMockSession(params, 1)
	pipe := audio.NewPipe(1024)
	cmd := audio.NewCommandCell()
	status := &CurrentTrackInfo{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		renderLoop(ctx, session, pipe, cmd, status)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cmd.Post(audio.CommandPause)

	assert.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return !session.started
	}, 200*time.Millisecond, time.Millisecond)

	cmd.Post(audio.CommandStop)
	cancel()
	<-done
}

func TestRenderLoopStopIsIdempotent(t *testing.T) {
	params := audio.StreamParams{Channels: 1, SampleRate: audio.Rate48000, BitsPerSample: audio.Bits16}
	session := newMockSession(params, 1)
	pipe := audio.NewPipe(16)
	cmd := audio.NewCommandCell()
	status := &CurrentTrackInfo{}

	cmd.Post(audio.CommandStop)
	cmd.Post(audio.CommandStop)

	err := renderLoop(context.Background(), session, pipe, cmd, status)
	assert.NoError(t, err)
	assert.Equal(t, 1, session.startCount)
	assert.Equal(t, 1, session.stopCount)
}
