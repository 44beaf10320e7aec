package player

import (
	"path/filepath"

	"github.com/PapyKahan/rhap/decode"
)

// Track is the concrete track source interface of spec.md §6.1: open a
// fresh decode source for playback, and report the path it came from (the
// controller's best-effort metadata fallback uses this).
type Track interface {
	Open() (decode.Source, error)
	Path() string
}

// FileTrack is a Track backed by a file on disk. Opening it selects
// decode.FlacSource or decode.FFmpegSource by extension through
// decode.Open.
type FileTrack struct {
	path string
}

// NewFileTrack wraps path as a playable track.
func NewFileTrack(path string) *FileTrack {
	return &FileTrack{path: path}
}

func (t *FileTrack) Open() (decode.Source, error) {
	return decode.Open(t.path)
}

func (t *FileTrack) Path() string { return t.path }

// Name is the base name of the underlying file, used when a track carries
// no embedded metadata.
func (t *FileTrack) Name() string {
	base := filepath.Base(t.path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
