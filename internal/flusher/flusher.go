// Package flusher implements the Run Writer and the Background Flusher: a
// single dedicated goroutine that turns a sorted Ingest Buffer into one
// logical run via the Sort File Pool, while the foreground goroutine fills
// the other buffer. The two sides hand off buffers one at a time over an
// unbuffered channel, which is what serializes flushes to exactly one
// in-flight write at a time without any extra locking.
package flusher

import (
	"fmt"

	"github.com/peak/spillsort/internal/codec"
	"github.com/peak/spillsort/internal/runfile"
)

// WriteRun is the Run Writer: it writes data, already sorted, as one
// logical run through pool and returns its descriptor. data must not be
// mutated until the returned Run (or an error) is observed.
func WriteRun[T any](pool *runfile.Pool, data []T) (runfile.Run, error) {
	if len(data) == 0 {
		return runfile.Run{}, nil
	}

	fileID, _, err := pool.AllocateRun()
	if err != nil {
		return runfile.Run{}, fmt.Errorf("flusher: allocate run: %w", err)
	}

	w, err := pool.Writer(fileID)
	if err != nil {
		return runfile.Run{}, fmt.Errorf("flusher: open writer on file %d: %w", fileID, err)
	}

	raw := codec.AsBytes(data)
	n, werr := w.Write(raw)
	cerr := w.Close()
	if werr != nil {
		return runfile.Run{}, fmt.Errorf("flusher: write run on file %d: %w", fileID, werr)
	}
	if n != len(raw) {
		return runfile.Run{}, fmt.Errorf("flusher: short write on file %d: wrote %d of %d bytes", fileID, n, len(raw))
	}
	if cerr != nil {
		return runfile.Run{}, fmt.Errorf("flusher: close writer on file %d: %w", fileID, cerr)
	}

	return pool.Finalize(fileID, int64(len(raw)), len(data))
}

// job is one pending flush request.
type job[T any] struct {
	data   []T
	result chan<- Outcome
}

// Outcome is the result of one flush: the resulting run descriptor, or an
// error if the write failed.
type Outcome struct {
	Run runfile.Run
	Err error
}

// Flusher owns the single background goroutine that drains jobs and writes
// them through the Pool.
type Flusher[T any] struct {
	pool *runfile.Pool
	jobs chan job[T]
	done chan struct{}
}

// New starts the Background Flusher's goroutine. Callers must call Close
// once no more buffers will be submitted.
func New[T any](pool *runfile.Pool) *Flusher[T] {
	f := &Flusher[T]{
		pool: pool,
		jobs: make(chan job[T]),
		done: make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *Flusher[T]) loop() {
	defer close(f.done)
	for j := range f.jobs {
		run, err := WriteRun(f.pool, j.data)
		j.result <- Outcome{run, err}
	}
}

// Submit hands data to the flusher goroutine. It blocks only until the
// flusher is ready to accept a new buffer, i.e. until the write of the
// previously submitted buffer has completed; it does not wait for data
// itself to finish writing. The returned channel receives
// exactly one Outcome once the write completes.
func (f *Flusher[T]) Submit(data []T) <-chan Outcome {
	result := make(chan Outcome, 1)
	f.jobs <- job[T]{data: data, result: result}
	return result
}

// Close signals the flusher goroutine to exit once it drains any job
// already accepted, and waits for it to do so. It does not cancel an
// in-flight write: that write completes or fails on its own before the
// goroutine exits.
func (f *Flusher[T]) Close() {
	close(f.jobs)
	<-f.done
}
