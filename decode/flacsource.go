package decode

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"
	pkgerrors "github.com/pkg/errors"

	"github.com/PapyKahan/rhap/audio"
)

// isFlacPath reports whether path should be handed to FlacSource rather
// than the ffmpeg fallback.
func isFlacPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".flac")
}

// FlacSource is the default decoder, grounded on mewkiz/flac's
// stream-of-frames API: it interleaves each frame's subframes into PCM at
// the stream's own bit depth rather than forcing everything to 16-bit, so
// the negotiated device format can ask for 24-bit output untouched.
type FlacSource struct {
	path     string
	file     *os.File
	stream   *flac.Stream
	format   audio.StreamParams
	metadata Metadata
	tmp      []byte
}

// NewFlacSource opens path and reads its STREAMINFO and Vorbis comment
// block (if present) up front.
func NewFlacSource(path string) (*FlacSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "decode: open %s", path)
	}
	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(ErrUnsupportedFormat, err.Error())
	}

	info := stream.Info
	bits := audio.BitsPerSample(info.BitsPerSample)
	if bits != audio.Bits16 && bits != audio.Bits24 && bits != audio.Bits32 {
		bits = audio.Bits16
	}

	s := &FlacSource{
		path:   path,
		file:   f,
		stream: stream,
		format: audio.StreamParams{
			Channels:      int(info.NChannels),
			SampleRate:    audio.SampleRate(info.SampleRate),
			BitsPerSample: bits,
		},
		metadata: vorbisMetadata(stream),
	}
	if s.metadata.Title == "" {
		s.metadata.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// vorbisMetadata extracts artist/title from the stream's Vorbis comment
// block, if one was parsed. Best-effort: absence is not an error.
func vorbisMetadata(stream *flac.Stream) Metadata {
	var md Metadata
	for _, block := range stream.Metadata {
		cmt, ok := block.Body.(*meta.VorbisComment)
		if !ok {
			continue
		}
		for _, tag := range cmt.Tags {
			if len(tag) != 2 {
				continue
			}
			switch strings.ToUpper(tag[0]) {
			case "ARTIST":
				md.Artist = tag[1]
			case "TITLE":
				md.Title = tag[1]
			}
		}
	}
	return md
}

func (s *FlacSource) Format() audio.StreamParams { return s.format }
func (s *FlacSource) Metadata() Metadata         { return s.metadata }

// Next decodes one FLAC frame and interleaves its subframes into PCM at
// the stream's native bit depth, following the bit-shift-and-pack pattern
// climp's flacDecoder uses for its fixed 16-bit output, generalized here
// to whatever depth STREAMINFO reported.
func (s *FlacSource) Next() (Chunk, error) {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return Chunk{}, pkgerrors.WithMessage(&DecodeError{Kind: EndOfStream, Err: io.EOF}, "decode")
		}
		return Chunk{}, transient(pkgerrors.Wrap(ErrCorruptStream, err.Error()))
	}

	channels := s.format.Channels
	bytesPerSample := int(s.format.BitsPerSample) / 8
	nSamples := int(frame.Subframes[0].NSamples)
	rawSize := nSamples * channels * bytesPerSample
	if cap(s.tmp) < rawSize {
		s.tmp = make([]byte, rawSize)
	}
	raw := s.tmp[:rawSize]

	srcBits := int(frame.Header.BitsPerSample)
	dstBits := int(s.format.BitsPerSample)
	for i := 0; i < nSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := int32(frame.Subframes[ch].Samples[i])
			switch {
			case srcBits > dstBits:
				sample >>= uint(srcBits - dstBits)
			case srcBits < dstBits:
				sample <<= uint(dstBits - srcBits)
			}
			offset := (i*channels + ch) * bytesPerSample
			packSample(raw[offset:offset+bytesPerSample], sample, dstBits)
		}
	}
	return Chunk{PCM: raw}, nil
}

// packSample writes a little-endian signed sample of the given bit depth.
func packSample(dst []byte, sample int32, bits int) {
	switch bits {
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(sample)))
	case 24:
		dst[0] = byte(sample)
		dst[1] = byte(sample >> 8)
		dst[2] = byte(sample >> 16)
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(sample))
	}
}

// Reset seeks back to the first sample. mewkiz/flac's Stream.Seek handles
// reopening its internal bit reader state; if that fails (e.g. a
// non-seekable underlying reader) Reset falls back to reopening the file
// from scratch, matching the teacher's own reopen-on-seek-failure habit.
func (s *FlacSource) Reset() error {
	if _, err := s.stream.Seek(0); err == nil {
		return nil
	}
	s.stream.Close()
	s.file.Close()

	f, err := os.Open(s.path)
	if err != nil {
		return pkgerrors.Wrapf(err, "decode: reopen %s", s.path)
	}
	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return pkgerrors.Wrapf(err, "decode: reopen %s", s.path)
	}
	s.file = f
	s.stream = stream
	return nil
}

func (s *FlacSource) Close() error {
	var errs []error
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
