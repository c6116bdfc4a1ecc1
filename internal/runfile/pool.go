// Package runfile implements the Sort File Pool: it multiplexes an
// unbounded number of logical runs onto at most MaxFiles physical files,
// tracking byte ranges per run and closing/unlinking files as their last
// run drains.
package runfile

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/peak/spillsort/internal/fdlimit"
	"github.com/peak/spillsort/internal/runcodec"
)

// DefaultMaxFiles is the hard ceiling on concurrently open sort files
// (spec: F_max = 256).
const DefaultMaxFiles = 256

// readBufferSize is the bufio size used when flushing writes and when
// sequentially reading back a run's section.
const readBufferSize = 1 << 16 // 64k

// Run is a Logical Run descriptor: a contiguous byte range in one physical
// file, corresponding to one sorted sequence of values.
type Run struct {
	FileID       int
	Offset       int64
	ByteLength   int64
	ElementCount int
}

// Pool owns up to MaxFiles physical files and allocates logical run slots
// on them in round-robin order, amortizing write bandwidth across files.
// File ids are never reused: once a file is retired its slot in files
// stays, marked retired, so outstanding Run descriptors referencing it by
// id remain meaningful for diagnostics even after it is gone.
type Pool struct {
	backend  Backend
	maxFiles int
	codec    runcodec.Codec

	mu        sync.Mutex
	files     []*poolFile
	liveCount int // number of currently open (non-retired) files
	cursor    int // round-robin search start among p.files
	closed    bool
}

type poolFile struct {
	id       int
	file     File
	buf      *bufio.Writer
	end      int64 // logical end of file; next append offset
	liveRuns int
	flushed  bool // true once buf has been Flush()ed since last Write
	retired  bool
}

// NewPool creates a Pool backed by real OS temp files in dir (the empty
// string uses the OS default temp directory), with the given file ceiling
// (<=0 uses DefaultMaxFiles) and compression codec (nil uses runcodec.None).
func NewPool(dir string, maxFiles int, codec runcodec.Codec) *Pool {
	_ = fdlimit.Raise()
	return NewPoolWithBackend(&OSBackend{Dir: dir}, maxFiles, codec)
}

// NewPoolWithBackend is NewPool with an explicit Backend, for tests that
// want an in-memory Pool (runfile.MemBackend{}).
func NewPoolWithBackend(backend Backend, maxFiles int, codec runcodec.Codec) *Pool {
	if maxFiles <= 0 || maxFiles > DefaultMaxFiles {
		maxFiles = DefaultMaxFiles
	}
	if codec == nil {
		codec = runcodec.None
	}
	return &Pool{backend: backend, maxFiles: maxFiles, codec: codec}
}

// OpenFiles returns the number of currently open (non-retired) physical
// files, for testing the ceiling invariant.
func (p *Pool) OpenFiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveCount
}

// AllocateRun picks the next file for a new run: round-robin among
// currently open files once the Pool is at its ceiling, otherwise opening
// a fresh file. It returns the file id and the run's starting offset,
// which is the file's current logical end — nothing is written yet.
func (p *Pool) AllocateRun() (fileID int, offset int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, 0, fmt.Errorf("runfile: pool is closed")
	}

	var pf *poolFile
	if p.liveCount < p.maxFiles {
		f, err := p.backend.Create()
		if err != nil {
			return 0, 0, fmt.Errorf("runfile: open new sort file: %w", err)
		}
		pf = &poolFile{
			id:   len(p.files),
			file: f,
			buf:  bufio.NewWriterSize(f, readBufferSize),
		}
		p.files = append(p.files, pf)
		p.liveCount++
	} else {
		pf = p.pickOpenFileLocked()
		if pf == nil {
			return 0, 0, fmt.Errorf("runfile: no open sort file available")
		}
	}

	return pf.id, pf.end, nil
}

// pickOpenFileLocked returns the next non-retired file after p.cursor,
// round-robin, and advances p.cursor past it. Caller holds p.mu.
func (p *Pool) pickOpenFileLocked() *poolFile {
	n := len(p.files)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if !p.files[idx].retired {
			p.cursor = (idx + 1) % n
			return p.files[idx]
		}
	}
	return nil
}

// Writer returns a writer for appending to fileID, wrapped by the Pool's
// compression codec. The caller must call Finalize with the exact number
// of bytes written through this writer (post-compression) once the run is
// complete, and must not interleave writes to different runs through
// writers obtained before their matching Finalize.
func (p *Pool) Writer(fileID int) (io.WriteCloser, error) {
	p.mu.Lock()
	pf := p.files[fileID]
	p.mu.Unlock()

	return p.codec.Wrap(countingWriter{pf.buf, &pf.flushed})
}

type countingWriter struct {
	w       io.Writer
	flushed *bool
}

func (c countingWriter) Write(p []byte) (int, error) {
	*c.flushed = false
	return c.w.Write(p)
}

// Finalize records that byteLength bytes (the actual, possibly compressed,
// size) were appended to fileID starting at the offset returned by the
// matching AllocateRun, holding elementCount values, bumps the file's
// logical end, and marks one more live run on that file.
func (p *Pool) Finalize(fileID int, byteLength int64, elementCount int) (Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pf := p.files[fileID]
	if err := pf.buf.Flush(); err != nil {
		return Run{}, fmt.Errorf("runfile: flush sort file %d: %w", fileID, err)
	}
	pf.flushed = true

	run := Run{FileID: fileID, Offset: pf.end, ByteLength: byteLength, ElementCount: elementCount}
	pf.end += byteLength
	pf.liveRuns++
	return run, nil
}

// OpenRun returns a sequential, codec-unwrapped reader over run's byte
// range. The owning file's write buffer is flushed first so the bytes are
// guaranteed visible (spec: "durable to the OS page cache").
func (p *Pool) OpenRun(run Run) (io.ReadCloser, error) {
	p.mu.Lock()
	pf := p.files[run.FileID]
	if !pf.flushed {
		if err := pf.buf.Flush(); err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("runfile: flush sort file %d: %w", run.FileID, err)
		}
		pf.flushed = true
	}
	file := pf.file
	p.mu.Unlock()

	section := io.NewSectionReader(file, run.Offset, run.ByteLength)
	return p.codec.Unwrap(bufio.NewReaderSize(section, readBufferSize))
}

// Retire decrements the live-run count of fileID; at zero the file is
// closed and removed from disk, freeing its slot for a future AllocateRun.
func (p *Pool) Retire(fileID int) error {
	p.mu.Lock()
	pf := p.files[fileID]
	pf.liveRuns--
	dead := pf.liveRuns <= 0 && !pf.retired
	if dead {
		pf.retired = true
		p.liveCount--
	}
	p.mu.Unlock()

	if !dead {
		return nil
	}
	if err := pf.file.Close(); err != nil {
		return fmt.Errorf("runfile: close sort file %d: %w", fileID, err)
	}
	return pf.file.Remove()
}

// Close tears down every still-open file unconditionally, for cancellation
// paths that must not leave temp files behind even though some runs were
// never fully drained.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	files := p.files
	p.files = nil
	p.liveCount = 0
	p.mu.Unlock()

	var errs []error
	for _, pf := range files {
		if pf.retired {
			continue
		}
		if err := pf.file.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := pf.file.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
