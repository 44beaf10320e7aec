// Package decode turns files on disk into interleaved PCM byte streams at
// a caller-requested rate and bit depth. It knows nothing about devices or
// playback timing; it only produces bytes for the render loop's pipe.
package decode

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/PapyKahan/rhap/audio"
)

// ErrorKind classifies a decode error so the caller can tell a transient
// hiccup from something that ends the track.
type ErrorKind int

const (
	// Transient means the source can still produce more data after this
	// error (e.g. a single corrupt frame); the caller should skip ahead
	// and keep reading.
	Transient ErrorKind = iota
	// Fatal means the source is unusable and the track should stop.
	Fatal
	// EndOfStream means the source is exhausted; this is not an error
	// condition for the caller, just a signal to stop reading.
	EndOfStream
)

// DecodeError wraps an underlying error with its Kind so callers can
// branch on errors.As without string matching.
type DecodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

func transient(err error) error { return &DecodeError{Kind: Transient, Err: err} }
func fatal(err error) error     { return &DecodeError{Kind: Fatal, Err: err} }

// Chunk is one block of decoded audio: interleaved PCM samples at Format,
// ready to resample and hand to a RenderSession.
type Chunk struct {
	PCM []byte
}

// Metadata is the best-effort track information spec.md §6 calls for.
// Both sources fill an empty Title with the file's base name; Artist has
// no fallback and stays empty when the file carries none.
type Metadata struct {
	Artist string
	Title  string
}

// Source is C4: something that can be opened, read in chunks of decoded
// PCM, reset to the beginning, and closed. Format reports the
// native format the chunks are encoded at; resampling to the device's
// negotiated format is the caller's responsibility (C5).
type Source interface {
	// Format is the native sample rate/bit depth/channel count this
	// source decodes to, before any resampling.
	Format() audio.StreamParams
	// Metadata is the best-effort artist/title pulled from the file, if
	// any was present.
	Metadata() Metadata
	// Next returns the next chunk of decoded PCM. It returns an error
	// wrapping EndOfStream when the track is exhausted.
	Next() (Chunk, error)
	// Reset seeks back to the beginning of the track.
	Reset() error
	// Close releases any file handles or subprocesses.
	Close() error
}

// sentinel errors surfaced through DecodeError.Err via errors.Is.
var (
	ErrUnsupportedFormat = errors.New("decode: unsupported file format")
	ErrCorruptStream     = errors.New("decode: corrupt stream")
)

// Open selects a Source implementation by file extension: FlacSource for
// ".flac", FFmpegSource for everything else decode recognizes.
func Open(path string) (Source, error) {
	if isFlacPath(path) {
		return NewFlacSource(path)
	}
	src, err := NewFFmpegSource(path)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "decode")
	}
	return src, nil
}
