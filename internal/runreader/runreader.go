// Package runreader implements the Run Reader: bounded read-ahead
// reconstruction of one logical run back into values of type T, satisfying
// losertree.Source[T] so a Reader can sit directly at a tournament leaf.
package runreader

import (
	"fmt"
	"io"

	"github.com/peak/spillsort/internal/atomicflag"
	"github.com/peak/spillsort/internal/codec"
	"github.com/peak/spillsort/internal/runfile"
)

// Reader pulls one logical run back into values, R at a time (R =
// readaheadBytes/S), reinterpreting each refill's bytes in place rather than
// decoding element by element.
type Reader[T any] struct {
	pool *runfile.Pool
	run  runfile.Run
	body io.ReadCloser

	readaheadBytes int64
	remaining      int64 // bytes not yet requested from body

	buf    []T // backing storage for the current readahead window
	cursor int // index of the next unconsumed element in buf

	// eof and retired are only ever written from the merge goroutine that
	// owns this Reader. They are atomic, but buf and cursor are not.
	eof     atomicflag.Bool
	retired atomicflag.Bool
}

// New opens run for reading through pool, with a readahead window of
// readaheadBytes (rounded down to a whole number of elements; at least one
// element's worth is always requested). The first window is not filled
// until the first Peek or Advance.
func New[T any](pool *runfile.Pool, run runfile.Run, readaheadBytes int) (*Reader[T], error) {
	size := codec.SizeOf[T]()
	if size <= 0 {
		return nil, fmt.Errorf("runreader: zero-size element type")
	}
	if readaheadBytes < size {
		readaheadBytes = size
	}

	body, err := pool.OpenRun(run)
	if err != nil {
		return nil, fmt.Errorf("runreader: open run on file %d: %w", run.FileID, err)
	}

	r := &Reader[T]{
		pool:           pool,
		run:            run,
		body:           body,
		readaheadBytes: int64(readaheadBytes - readaheadBytes%size),
		remaining:      int64(run.ElementCount) * int64(size),
	}
	if r.readaheadBytes == 0 {
		r.readaheadBytes = int64(size)
	}
	return r, nil
}

// Peek implements losertree.Source[T]: it returns the current head value,
// refilling the readahead window first if it is empty and the run is not
// yet exhausted.
func (r *Reader[T]) Peek() (T, bool, error) {
	var zero T
	if r.cursor < len(r.buf) {
		return r.buf[r.cursor], true, nil
	}
	if r.eof.Get() {
		return zero, false, nil
	}
	if err := r.refill(); err != nil {
		return zero, false, err
	}
	if r.cursor < len(r.buf) {
		return r.buf[r.cursor], true, nil
	}
	return zero, false, nil
}

// Advance implements losertree.Source[T]: it consumes the current head.
// Refilling happens lazily on the next Peek, per the refill policy.
func (r *Reader[T]) Advance() error {
	if r.cursor < len(r.buf) {
		r.cursor++
		return nil
	}
	if r.eof.Get() {
		return nil
	}
	if err := r.refill(); err != nil {
		return err
	}
	if r.cursor < len(r.buf) {
		r.cursor++
	}
	return nil
}

// Exhausted reports whether the run has no more buffered or retrievable
// elements. It reads the readahead cursor without synchronization, so it
// is not safe to call concurrently with Peek or Advance.
func (r *Reader[T]) Exhausted() bool {
	return r.cursor >= len(r.buf) && r.eof.Get()
}

// refill requests min(readaheadBytes, remaining) from the Pool's run
// stream, reinterprets it as []T, and resets the cursor. When both the
// readahead and the run are empty, it sets eof and retires the file.
func (r *Reader[T]) refill() error {
	if r.remaining == 0 {
		return r.finish()
	}

	want := r.readaheadBytes
	if want > r.remaining {
		want = r.remaining
	}

	size := int64(codec.SizeOf[T]())
	elems := int(want / size)
	window := make([]T, elems)
	raw := codec.AsBytes(window)

	n, err := io.ReadFull(r.body, raw)
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("runreader: read run on file %d: %w", r.run.FileID, err)
	}
	if int64(n) != want {
		return fmt.Errorf("runreader: short read on file %d: got %d want %d bytes", r.run.FileID, n, want)
	}

	r.buf = window
	r.cursor = 0
	r.remaining -= want

	if r.remaining == 0 {
		return r.finish()
	}
	return nil
}

// finish marks the reader exhausted and retires its backing file, closing
// the decompression stream first.
func (r *Reader[T]) finish() error {
	if r.retired.Get() {
		return nil
	}
	r.eof.Set(true)
	r.retired.Set(true)

	closeErr := r.body.Close()
	retireErr := r.pool.Retire(r.run.FileID)
	if closeErr != nil {
		return fmt.Errorf("runreader: close run on file %d: %w", r.run.FileID, closeErr)
	}
	if retireErr != nil {
		return fmt.Errorf("runreader: retire file %d: %w", r.run.FileID, retireErr)
	}
	return nil
}

// Close abandons the reader without reading it to exhaustion, for
// cancellation paths: it still retires the backing file.
func (r *Reader[T]) Close() error {
	return r.finish()
}
