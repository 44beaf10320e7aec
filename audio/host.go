package audio

import "time"

// Host is the platform audio endpoint interface of spec §6: enumerate
// endpoints, and open one as a Device. Exactly one concrete Host is wired
// in per build (spec §9's "closed set of backends" — see wasapi_windows.go
// and portaudio_other.go), selected at compile time by GOOS, never by
// runtime dispatch over an open-ended plugin registry.
type Host interface {
	// Devices returns the ordered set of active render endpoints.
	Devices() ([]DeviceDescriptor, error)
	// DefaultDevice returns the single entry the system reports as
	// default.
	DefaultDevice() (DeviceDescriptor, error)
	// DeviceByIndex returns the i-th entry from the last enumeration
	// order.
	DeviceByIndex(i int) (DeviceDescriptor, error)
	// Open activates a client on the given descriptor.
	Open(desc DeviceDescriptor) (Device, error)
	// Close releases any process/thread-wide host state.
	Close() error
}

// Device is an activated endpoint: it can report its capabilities and can
// be negotiated and initialized into a RenderSession for one StreamParams
// at a time.
type Device interface {
	Descriptor() DeviceDescriptor
	// Capabilities returns the sample rates and bit depths this device
	// accepts.
	Capabilities() (Capabilities, error)
	// OpenSession negotiates params against the device (C2) and, on
	// success, initializes a render client (C3) ready to Start.
	OpenSession(params StreamParams, mode ShareMode) (RenderSession, error)
	// Close releases the activated client.
	Close() error
}

// RenderSession is C3: the initialized client and its paired render
// buffer. Exactly one RenderSession exists per Stream Controller at a
// time (spec §3).
type RenderSession interface {
	// Params is the negotiated format this session was initialized
	// with.
	Params() StreamParams
	// BlockAlign is params.BlockAlign(), exposed directly so the render
	// loop never has to reach back into Params() on the hot path.
	BlockAlign() int
	// AvailableFrames is the whole buffer in exclusive mode, or
	// buffer_size - padding in shared mode.
	AvailableFrames() (int, error)
	// Write hands exactly frames*BlockAlign() bytes to the device. It
	// returns ErrWrongSize if len(payload) != frames*BlockAlign().
	Write(frames int, payload []byte) error
	// Start/Stop are idempotent.
	Start() error
	Stop() error
	// Wait blocks until the device signals it wants more data, or the
	// timeout elapses.
	Wait(timeout time.Duration) (signaled bool, err error)
	// Drop releases platform resources. Safe to call from any state,
	// any number of times.
	Drop() error
}
