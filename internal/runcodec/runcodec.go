// Package runcodec is the pluggable block-compression plug point named in
// the byte-layout contract: a run is either raw value images back to back,
// or a sequence of frames produced by wrapping the Pool's per-run file
// section in a streaming codec. The codec is transparent to the rest of
// the core: Run Writer and Run Reader only ever see an io.Writer/io.Reader.
package runcodec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Codec wraps and unwraps the byte stream of a single logical run. Wrap is
// called once per run on the write side; the returned WriteCloser must be
// Closed to flush any buffered compressed output before the run's
// descriptor is published. Unwrap is called once per run on the read
// side; the returned ReadCloser must be Closed when the run is retired.
type Codec interface {
	Name() string
	Wrap(w io.Writer) (io.WriteCloser, error)
	Unwrap(r io.Reader) (io.ReadCloser, error)
}

// None is the identity codec: a run is exactly element_count*S raw bytes,
// with no headers, magic numbers, or checksums.
var None Codec = noneCodec{}

type noneCodec struct{}

func (noneCodec) Name() string { return "none" }

func (noneCodec) Wrap(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noneCodec) Unwrap(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Zstd is a block-compressed codec backed by klauspost/compress/zstd. Each
// logical run is written as one continuous zstd stream and read back
// through a streaming decoder; the stream is not split into independently
// decodable frames at readahead-refill boundaries.
type Zstd struct {
	Level zstd.EncoderLevel
}

// NewZstd returns a Zstd codec at the given level. A zero Level defaults
// to zstd.SpeedDefault.
func NewZstd(level zstd.EncoderLevel) *Zstd {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return &Zstd{Level: level}
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) Wrap(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(z.Level))
}

func (z *Zstd) Unwrap(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zstdReadCloser{dec}, nil
}

// zstdReadCloser adapts *zstd.Decoder (whose Close takes no error) to
// io.ReadCloser.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
