// Package spillsort sorts arbitrarily large sequences of in-memory values
// by spilling sorted runs to disk and merging them back on demand, moving
// values across the memory/disk boundary by raw byte reinterpretation
// instead of per-element encoding. See internal/codec for the constraint
// this places on the value type: its bit pattern must be self-contained,
// with no pointers, slices, strings, maps, channels, funcs, or interfaces
// anywhere in its layout.
package spillsort

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/peak/spillsort/internal/codec"
	"github.com/peak/spillsort/internal/flusher"
	"github.com/peak/spillsort/internal/losertree"
	"github.com/peak/spillsort/internal/parallelsort"
	"github.com/peak/spillsort/internal/runfile"
	"github.com/peak/spillsort/internal/runreader"
)

// Sorter drives one sort's lifecycle: ingest from input, buffer and sort in
// memory, spill to disk as needed, and merge back into the output sequence
// returned by New.
type Sorter[T any] struct {
	config *Config
	input  <-chan T
	less   CompareLessFunc[T]
	output chan T
	errCh  chan error

	pool         *runfile.Pool
	constructErr error
}

// New validates config, constructs a Sorter over input, and returns it
// along with the channels that will carry the sorted output and any
// terminal error. Sort must be called to actually run it. A value type
// whose layout contains indirection (pointer, slice, string, map, chan,
// func, interface) is rejected here, since its bytes cannot be round
// tripped through disk.
func New[T any](input <-chan T, less CompareLessFunc[T], config *Config) (*Sorter[T], <-chan T, <-chan error) {
	merged := mergeConfig(config)
	output := make(chan T, merged.ReadBufferBytes/elementSize[T]()+1)
	errCh := make(chan error, 1)

	s := &Sorter[T]{
		config: merged,
		input:  input,
		less:   less,
		output: output,
		errCh:  errCh,
	}

	if codec.HasIndirection[T]() {
		s.constructErr = wrapErr("sort.new", KindConfigError, fmt.Errorf("value type contains indirection and cannot be byte-reinterpreted"))
		return s, output, errCh
	}
	if err := merged.Validate(); err != nil {
		s.constructErr = err
		return s, output, errCh
	}

	s.pool = runfile.NewPool(merged.SortDirectory, merged.MaxOpenFiles, merged.Compression)
	return s, output, errCh
}

func elementSize[T any]() int {
	n := codec.SizeOf[T]()
	if n <= 0 {
		return 1
	}
	return n
}

// Sort starts the sort. ctx governs cancellation: canceling it before the
// output sequence is exhausted aborts the merge, retires every reader, and
// tears down every sort file, the way dropping the output sequence does.
func (s *Sorter[T]) Sort(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sorter[T]) run(ctx context.Context) {
	defer close(s.output)
	defer close(s.errCh)

	if s.constructErr != nil {
		s.errCh <- s.constructErr
		return
	}

	capacity := elementCapacity[T](s.config.MemoryBudgetBytes)
	readahead := s.config.ReadBufferBytes

	bufs := [2][]T{make([]T, 0, capacity), make([]T, 0, capacity)}
	active := 0

	fl := flusher.New[T](s.pool)
	var runs []runfile.Run
	var pending <-chan flusher.Outcome

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case v, ok := <-s.input:
				if !ok {
					return nil
				}
				bufs[active] = append(bufs[active], v)
				if len(bufs[active]) < cap(bufs[active]) {
					continue
				}

				parallelsort.SortFunc(bufs[active], s.less, s.config.SortWorkers)
				s.config.Logger.Debugf("dispatching flush of %d values", len(bufs[active]))
				result := fl.Submit(bufs[active])

				if pending != nil {
					outcome := <-pending
					if outcome.Err != nil {
						return outcome.Err
					}
					runs = append(runs, outcome.Run)
					s.config.Logger.Debugf("flush complete: file %d offset %d", outcome.Run.FileID, outcome.Run.Offset)
				}
				pending = result

				other := 1 - active
				bufs[other] = bufs[other][:0]
				active = other
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	ingestErr := g.Wait()
	residual := bufs[active]

	if pending != nil {
		outcome := <-pending
		if ingestErr == nil && outcome.Err != nil {
			ingestErr = outcome.Err
		} else if outcome.Err == nil {
			runs = append(runs, outcome.Run)
		}
	}
	fl.Close()

	if ingestErr != nil {
		_ = s.pool.Close()
		s.errCh <- wrapErr("sort.ingest", classifyIngestErr(ctx, ingestErr), ingestErr)
		return
	}

	if len(residual) > 0 {
		parallelsort.SortFunc(residual, s.less, s.config.SortWorkers)
	}

	s.config.Logger.Infof("constructing merger over %d disk runs + residual of %d", len(runs), len(residual))

	sources := make([]losertree.Source[T], 0, len(runs)+1)
	readers := make([]*runreader.Reader[T], 0, len(runs))
	for _, run := range runs {
		r, err := runreader.New[T](s.pool, run, readahead)
		if err != nil {
			closeReaders(readers)
			_ = s.pool.Close()
			s.errCh <- wrapErr("sort.merge", KindIOError, err)
			return
		}
		readers = append(readers, r)
		sources = append(sources, r)
	}
	if len(residual) > 0 {
		sources = append(sources, &residualSource[T]{data: residual})
	}

	tree, err := losertree.New(sources, s.less)
	if err != nil {
		closeReaders(readers)
		_ = s.pool.Close()
		s.errCh <- wrapErr("sort.merge", KindIOError, err)
		return
	}

	for {
		v, ok, err := tree.Next()
		if err != nil {
			closeReaders(readers)
			_ = s.pool.Close()
			s.errCh <- wrapErr("merge.peek", KindIOError, err)
			return
		}
		if !ok {
			break
		}
		select {
		case s.output <- v:
		case <-ctx.Done():
			closeReaders(readers)
			_ = s.pool.Close()
			s.errCh <- wrapErr("merge.peek", KindSourceError, ctx.Err())
			return
		}
	}

	_ = s.pool.Close()
}

func classifyIngestErr(ctx context.Context, err error) Kind {
	if ctx.Err() != nil && err == ctx.Err() {
		return KindSourceError
	}
	return KindIOError
}

// closeReaders retires the backing file of every reader that has not yet
// reached its own natural EOF retire, for teardown on cancellation or
// error: draining readers without reading them.
func closeReaders[T any](readers []*runreader.Reader[T]) {
	for _, r := range readers {
		_ = r.Close()
	}
}

// residualSource adapts the sorted, never-flushed tail buffer to
// losertree.Source[T], the in-memory run participating directly in the
// merge.
type residualSource[T any] struct {
	data []T
	pos  int
}

func (r *residualSource[T]) Peek() (T, bool, error) {
	var zero T
	if r.pos >= len(r.data) {
		return zero, false, nil
	}
	return r.data[r.pos], true, nil
}

func (r *residualSource[T]) Advance() error {
	r.pos++
	return nil
}

// elementCapacity computes C = max(1, memory_budget_bytes/S).
func elementCapacity[T any](memoryBudgetBytes int) int {
	size := elementSize[T]()
	c := memoryBudgetBytes / size
	if c < 1 {
		c = 1
	}
	return c
}
