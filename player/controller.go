// Package player implements the stream controller (C8) and render loop
// (C7): it takes a Track, negotiates and opens a device session, and runs
// the decode and render tasks that move bytes from file to speaker.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/PapyKahan/rhap/audio"
	"github.com/PapyKahan/rhap/decode"
)

// ErrNoDevice is returned by Play when SelectDevice has not succeeded
// yet.
var ErrNoDevice = errors.New("player: no device selected")

// Controller is the public facade of C8: it owns the RenderSession and
// the two cooperative tasks (decode, render) for exactly one playing
// track at a time.
type Controller struct {
	host   audio.Host
	device audio.Device

	exclusive    bool
	bufferLength int64 // requested buffer length in 100-ns units, 0 = device default

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cmd    *audio.CommandCell
	status *CurrentTrackInfo
}

// NewController wires a Controller on top of an already-opened Host.
// Playback defaults to exclusive mode with a device-default buffer
// length; use SetPlaybackOptions to change either.
func NewController(host audio.Host) *Controller {
	return &Controller{
		host:      host,
		exclusive: true,
		cmd:       audio.NewCommandCell(),
		status:    &CurrentTrackInfo{},
	}
}

// SetPlaybackOptions configures the share mode and requested buffer
// length (in 100-ns units) used by subsequent calls to Play.
func (c *Controller) SetPlaybackOptions(exclusive bool, bufferLength100ns int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exclusive = exclusive
	c.bufferLength = bufferLength100ns
}

// EnumerateDevices lists the host's render endpoints.
func (c *Controller) EnumerateDevices() ([]audio.DeviceDescriptor, error) {
	return c.host.Devices()
}

// SelectDevice opens the device at index, or the system default when
// index is nil.
func (c *Controller) SelectDevice(index *int) error {
	var desc audio.DeviceDescriptor
	var err error
	if index == nil {
		desc, err = c.host.DefaultDevice()
	} else {
		desc, err = c.host.DeviceByIndex(*index)
	}
	if err != nil {
		return err
	}
	dev, err := c.host.Open(desc)
	if err != nil {
		return err
	}
	if c.device != nil {
		c.device.Close()
	}
	c.device = dev
	return nil
}

// Status returns the observable CurrentTrackInfo the UI layer reads.
func (c *Controller) Status() *CurrentTrackInfo { return c.status }

// Play implements spec.md §4.8 steps 1-6: abort any prior tasks, reset
// the track's decoder, negotiate and build a fresh session, then spawn
// the decode and render tasks.
func (c *Controller) Play(track Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return ErrNoDevice
	}

	// Step 1: abort any prior decode/render tasks and await termination
	// before reinitializing, so a fresh session never observes handles
	// from the previous one.
	c.stopLocked()

	source, err := track.Open()
	if err != nil {
		return fmt.Errorf("player: open track: %w", err)
	}

	// Step 2: seek(0); decoder.reset() — a freshly opened source already
	// starts at time zero, so Reset is only needed on replay; call it
	// defensively in case Open returned a cached/reused source.
	if err := source.Reset(); err != nil {
		source.Close()
		return fmt.Errorf("player: reset track: %w", err)
	}

	// Step 3: derive StreamParams, adjust against capabilities, build the
	// RenderSession.
	requested := source.Format()
	requested.Exclusive = c.exclusive
	requested.BufferLength = c.bufferLength
	caps, err := c.device.Capabilities()
	if err != nil {
		source.Close()
		return fmt.Errorf("player: capabilities: %w", err)
	}
	negotiated, err := caps.Adjust(requested)
	if err != nil {
		source.Close()
		return fmt.Errorf("player: %w", err)
	}

	shareMode := audio.ShareModeShared
	if c.exclusive {
		shareMode = audio.ShareModeExclusive
	}
	session, err := c.device.OpenSession(negotiated, shareMode)
	if err != nil {
		source.Close()
		return fmt.Errorf("player: open session: %w", err)
	}

	bufferBytes, err := session.AvailableFrames()
	if err != nil {
		bufferBytes = 4096
	} else {
		bufferBytes *= session.BlockAlign()
	}
	pipe := audio.NewPipe(2 * bufferBytes)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.cmd = audio.NewCommandCell()

	// The decode task's only suspension point is Pipe.Send/SendBytes
	// blocking on a full channel once the render loop stops draining it;
	// wiring cancellation into the pipe itself unparks it on teardown so
	// decodeTask's deferred pipe.Close() still runs and stopLocked's
	// c.wg.Wait() doesn't deadlock.
	go func() {
		<-ctx.Done()
		pipe.Cancel()
	}()

	name := track.Path()
	if ft, ok := track.(*FileTrack); ok {
		name = ft.Name()
	}
	md := source.Metadata()
	title := md.Title
	if title == "" {
		title = name
	}
	c.status.set(title, md.Artist, negotiated)

	// Step 4: spawn the decode task.
	c.wg.Add(1)
	go c.decodeTask(ctx, source, negotiated, pipe)

	// Step 5: spawn the render task.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := renderLoop(ctx, session, pipe, c.cmd, c.status); err != nil {
			log.Printf("player: render loop: %v", err)
		}
		session.Drop()
	}()

	return nil
}

// decodeTask is C4 -> (C5) -> C6: read chunks from source, resample to
// the negotiated format if needed, and feed bytes into pipe one chunk at
// a time until EndOfStream or Fatal, then close pipe.
func (c *Controller) decodeTask(ctx context.Context, source decode.Source, negotiated audio.StreamParams, pipe *audio.Pipe) {
	defer c.wg.Done()
	defer pipe.Close()
	defer source.Close()

	resampler := decode.NewResampler(source.Format(), negotiated)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, err := source.Next()
		if err != nil {
			var de *decode.DecodeError
			if errors.As(err, &de) {
				switch de.Kind {
				case decode.Transient:
					continue
				case decode.EndOfStream:
					flushResampler(resampler, pipe)
					return
				case decode.Fatal:
					log.Printf("player: decode fatal: %v", de.Err)
					return
				}
			}
			if errors.Is(err, io.EOF) {
				flushResampler(resampler, pipe)
				return
			}
			log.Printf("player: decode: %v", err)
			return
		}

		out := resampler.Convert(chunk.PCM)
		if !pipe.SendBytes(out) {
			return
		}
	}
}

// flushResampler issues the zero-sized flush call spec §4.5 requires on
// end-of-stream, so a sinc resampler's carried delay line isn't silently
// dropped, and forwards whatever tail it produces.
func flushResampler(resampler decode.Resampler, pipe *audio.Pipe) {
	if tail := resampler.Convert(nil); len(tail) > 0 {
		pipe.SendBytes(tail)
	}
}

// Pause posts Pause to the command cell; the render loop services it
// within one buffer period (invariant I3).
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		c.cmd.Post(audio.CommandPause)
	}
}

// Resume posts Start, waking a paused render loop.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		c.cmd.Post(audio.CommandStart)
	}
}

// Stop posts Stop and awaits both tasks. Calling Stop twice, or before
// any Play, is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.cmd != nil {
		c.cmd.Post(audio.CommandStop)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.cancel = nil
}

// Close releases the selected device and the host.
func (c *Controller) Close() error {
	c.Stop()
	if c.device != nil {
		c.device.Close()
		c.device = nil
	}
	return c.host.Close()
}
