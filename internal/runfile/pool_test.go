package runfile

import (
	"io"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/spillsort/internal/runcodec"
)

func writeRun(t *testing.T, p *Pool, payload []byte, elementCount int) Run {
	t.Helper()

	fileID, _, err := p.AllocateRun()
	assert.NilError(t, err)

	w, err := p.Writer(fileID)
	assert.NilError(t, err)
	_, err = w.Write(payload)
	assert.NilError(t, err)
	assert.NilError(t, w.Close())

	run, err := p.Finalize(fileID, int64(len(payload)), elementCount)
	assert.NilError(t, err)
	return run
}

func TestPoolRunRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 4, runcodec.None)
	payload := []byte("0123456789")
	run := writeRun(t, p, payload, 10)

	r, err := p.OpenRun(run)
	assert.NilError(t, err)
	got, err := io.ReadAll(r)
	assert.NilError(t, err)
	assert.NilError(t, r.Close())
	assert.DeepEqual(t, got, payload)

	assert.NilError(t, p.Retire(run.FileID))
	assert.Equal(t, p.OpenFiles(), 0)
}

func TestPoolCeilingEnforced(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 2, runcodec.None)
	var runs []Run
	for i := 0; i < 5; i++ {
		runs = append(runs, writeRun(t, p, []byte{byte(i)}, 1))
		if p.OpenFiles() > 2 {
			t.Fatalf("pool exceeded ceiling: %d open files", p.OpenFiles())
		}
	}
	assert.Equal(t, p.OpenFiles(), 2)

	for _, run := range runs {
		r, err := p.OpenRun(run)
		assert.NilError(t, err)
		got, err := io.ReadAll(r)
		assert.NilError(t, err)
		assert.NilError(t, r.Close())
		assert.Equal(t, len(got), 1)
	}
}

func TestPoolRetireClosesAndFreesSlot(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 1, runcodec.None)
	run1 := writeRun(t, p, []byte("a"), 1)
	assert.Equal(t, p.OpenFiles(), 1)

	assert.NilError(t, p.Retire(run1.FileID))
	assert.Equal(t, p.OpenFiles(), 0)

	// the freed slot lets a new file open again under the same ceiling
	run2 := writeRun(t, p, []byte("b"), 1)
	assert.Equal(t, p.OpenFiles(), 1)
	assert.Assert(t, run2.FileID != run1.FileID)
}

func TestPoolRoundRobinAtCeiling(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 2, runcodec.None)
	run0 := writeRun(t, p, []byte{0}, 1)
	run1 := writeRun(t, p, []byte{1}, 1)
	run2 := writeRun(t, p, []byte{2}, 1)

	assert.Equal(t, p.OpenFiles(), 2)
	// the third run lands on one of the two open files, not a third.
	assert.Assert(t, run2.FileID == run0.FileID || run2.FileID == run1.FileID)
}

func TestPoolCloseRemovesOutstandingFiles(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 4, runcodec.None)
	writeRun(t, p, []byte("x"), 1)
	writeRun(t, p, []byte("y"), 1)
	assert.Equal(t, p.OpenFiles(), 2)

	assert.NilError(t, p.Close())
	assert.Equal(t, p.OpenFiles(), 0)

	_, _, err := p.AllocateRun()
	assert.ErrorContains(t, err, "closed")
}

func TestPoolZstdRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewPoolWithBackend(MemBackend{}, 1, runcodec.NewZstd(0))
	payload := []byte("abcdefghijklmnopqrstuvwxyz")
	run := writeRun(t, p, payload, 26)

	r, err := p.OpenRun(run)
	assert.NilError(t, err)
	got, err := io.ReadAll(r)
	assert.NilError(t, err)
	assert.NilError(t, r.Close())
	assert.DeepEqual(t, got, payload)
}
