package losertree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

// sliceSource is a losertree.Source[int] backed by an in-memory sorted
// slice, the same shape the residual in-memory run uses in the
// Orchestrator.
type sliceSource struct {
	data []int
	pos  int
}

func (s *sliceSource) Peek() (int, bool, error) {
	if s.pos >= len(s.data) {
		return 0, false, nil
	}
	return s.data[s.pos], true, nil
}

func (s *sliceSource) Advance() error {
	s.pos++
	return nil
}

func less(a, b int) bool { return a < b }

func drain(t *testing.T, tree *Tree[int]) []int {
	t.Helper()
	var out []int
	for {
		v, ok, err := tree.Next()
		assert.NilError(t, err)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

func buildTree(t *testing.T, runs [][]int) *Tree[int] {
	t.Helper()
	sources := make([]Source[int], len(runs))
	for i, r := range runs {
		sources[i] = &sliceSource{data: r}
	}
	tree, err := New(sources, less)
	assert.NilError(t, err)
	return tree
}

func TestMergeAgainstReferenceSort(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	for _, k := range []int{1, 2, 3, 4, 5, 7, 8, 16, 31} {
		var all []int
		var runs [][]int
		for i := 0; i < k; i++ {
			n := rng.Intn(20)
			run := make([]int, n)
			for j := range run {
				run[j] = rng.Intn(1000)
			}
			sort.Ints(run)
			runs = append(runs, run)
			all = append(all, run...)
		}
		sort.Ints(all)

		tree := buildTree(t, runs)
		got := drain(t, tree)

		if diff := cmp.Diff(all, got); diff != "" {
			t.Fatalf("k=%d: merge mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestEmptySources(t *testing.T) {
	t.Parallel()
	tree := buildTree(t, nil)
	assert.Equal(t, tree.Len(), 0)
	_, ok := tree.Peek()
	assert.Assert(t, !ok)
	got := drain(t, tree)
	assert.Assert(t, got == nil)
}

func TestSingleSource(t *testing.T) {
	t.Parallel()
	tree := buildTree(t, [][]int{{1, 2, 3}})
	got := drain(t, tree)
	assert.DeepEqual(t, got, []int{1, 2, 3})
}

func TestSomeSourcesEmptyAtConstruction(t *testing.T) {
	t.Parallel()
	tree := buildTree(t, [][]int{{}, {2, 4}, {}, {1, 3}})
	got := drain(t, tree)
	assert.DeepEqual(t, got, []int{1, 2, 3, 4})
}

func TestNonPowerOfTwoK(t *testing.T) {
	t.Parallel()
	tree := buildTree(t, [][]int{{5}, {1, 9}, {3}, {2, 4, 6}, {0}})
	got := drain(t, tree)
	assert.DeepEqual(t, got, []int{0, 1, 2, 3, 4, 5, 6, 9})
}

type erroringSource struct {
	peeked bool
	err    error
}

func (e *erroringSource) Peek() (int, bool, error) {
	if e.peeked {
		return 0, false, e.err
	}
	return 1, true, nil
}

func (e *erroringSource) Advance() error { e.peeked = true; return nil }

func TestReaderErrorPropagatesAtFollowingNext(t *testing.T) {
	t.Parallel()

	es := &erroringSource{err: errBoom}
	tree, err := New([]Source[int]{es, &sliceSource{data: []int{100}}}, less)
	assert.NilError(t, err)

	v, ok, err := tree.Next()
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, v, 1)

	_, _, err = tree.Next()
	assert.Error(t, err, errBoom.Error())
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }
