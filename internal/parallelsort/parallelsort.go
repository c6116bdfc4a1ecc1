// Package parallelsort implements the optional work-stealing parallel sort
// of an Ingest Buffer named in the concurrency model: split the buffer into
// contiguous segments, sort each segment concurrently on a bounded worker
// pool, then merge the sorted segments back into the buffer with the same
// loser-tree machinery the disk-backed merge uses.
package parallelsort

import (
	"sort"
	"sync"

	"github.com/peak/spillsort/internal/losertree"
)

// manager bounds concurrent segment sorts to workercount goroutines,
// grounded on the teacher's semaphore+WaitGroup worker pool.
type manager struct {
	wg        sync.WaitGroup
	semaphore chan struct{}
}

func newManager(workercount int) *manager {
	return &manager{semaphore: make(chan struct{}, workercount)}
}

func (m *manager) run(fn func()) {
	m.semaphore <- struct{}{}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.semaphore }()
		fn()
	}()
}

func (m *manager) wait() {
	m.wg.Wait()
}

// SortFunc sorts data in place using up to workers goroutines. workers <= 1,
// or len(data) too small to be worth splitting, falls back to a single
// sort.Slice pass.
func SortFunc[T any](data []T, less func(a, b T) bool, workers int) {
	n := len(data)
	if workers <= 1 || n < 2*workers {
		sort.Slice(data, func(i, j int) bool { return less(data[i], data[j]) })
		return
	}

	segSize := (n + workers - 1) / workers
	var bounds [][2]int
	for start := 0; start < n; start += segSize {
		end := start + segSize
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}

	m := newManager(workers)
	for _, b := range bounds {
		b := b
		m.run(func() {
			seg := data[b[0]:b[1]]
			sort.Slice(seg, func(i, j int) bool { return less(seg[i], seg[j]) })
		})
	}
	m.wait()

	merged := mergeSegments(data, bounds, less)
	copy(data, merged)
}

// sliceSource adapts a sorted slice to losertree.Source[T].
type sliceSource[T any] struct {
	data []T
	pos  int
}

func (s *sliceSource[T]) Peek() (T, bool, error) {
	var zero T
	if s.pos >= len(s.data) {
		return zero, false, nil
	}
	return s.data[s.pos], true, nil
}

func (s *sliceSource[T]) Advance() error {
	s.pos++
	return nil
}

// mergeSegments k-way merges the already-sorted, contiguous segments of
// data (as described by bounds) into a freshly allocated slice.
func mergeSegments[T any](data []T, bounds [][2]int, less func(a, b T) bool) []T {
	sources := make([]losertree.Source[T], len(bounds))
	for i, b := range bounds {
		sources[i] = &sliceSource[T]{data: data[b[0]:b[1]]}
	}

	tree, err := losertree.New(sources, less)
	if err != nil {
		// sliceSource.Peek never errors; New cannot fail here.
		panic(err)
	}

	out := make([]T, 0, len(data))
	for {
		v, ok, err := tree.Next()
		if err != nil {
			panic(err)
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
