package audio

import "time"

// RecvStatus describes what Pipe.Recv returned.
type RecvStatus int

const (
	RecvByte RecvStatus = iota
	RecvClosed
	RecvTimedOut
)

// Pipe is the bounded single-producer/single-consumer byte channel of
// spec §4.6 (C6). A Go channel already gives FIFO ordering and the
// close-then-drain semantics the spec calls for, so this is a thin
// wrapper rather than a hand-rolled ring buffer.
type Pipe struct {
	ch   chan byte
	done chan struct{}
}

// NewPipe allocates a pipe of the given byte capacity. Capacity must be at
// least 2× the device buffer size in bytes to avoid starving the render
// loop (spec §3, ByteChannel invariant).
func NewPipe(capacityBytes int) *Pipe {
	if capacityBytes < 1 {
		capacityBytes = 1
	}
	return &Pipe{ch: make(chan byte, capacityBytes), done: make(chan struct{})}
}

// Send writes one byte, blocking while the pipe is full, until Cancel
// unparks it. It reports false if Cancel fired before the byte was
// accepted, so a producer parked here during teardown can still return
// instead of leaking forever. Must not be called after Close.
func (p *Pipe) Send(b byte) bool {
	select {
	case p.ch <- b:
		return true
	case <-p.done:
		return false
	}
}

// SendBytes writes a slice of bytes in order. It is a convenience over
// repeated Send calls — spec §9 notes that per-byte traffic is inefficient
// and that batching at any granularity is acceptable as long as ordering
// and close semantics hold. It stops and reports false as soon as Cancel
// fires, leaving the remainder of buf unsent.
func (p *Pipe) SendBytes(buf []byte) bool {
	for _, b := range buf {
		if !p.Send(b) {
			return false
		}
	}
	return true
}

// Cancel unparks any goroutine blocked in Send/SendBytes without closing
// the byte channel itself, so the producer can still be the one to call
// Close afterward. Safe to call more than once.
func (p *Pipe) Cancel() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// Close marks end-of-stream. Only the producer may call this; the
// consumer can still drain bytes already queued.
func (p *Pipe) Close() {
	close(p.ch)
}

// Recv waits up to timeout for the next byte. It returns RecvClosed once
// the pipe has been closed and fully drained, RecvTimedOut if no byte
// arrived within timeout, or RecvByte with the value otherwise.
func (p *Pipe) Recv(timeout time.Duration) (byte, RecvStatus) {
	select {
	case b, ok := <-p.ch:
		if !ok {
			return 0, RecvClosed
		}
		return b, RecvByte
	case <-time.After(timeout):
		return 0, RecvTimedOut
	}
}
