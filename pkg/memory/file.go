package memory

import (
	"os"
	"sync"

	"github.com/marmos91/woram/pkg/woramerr"
)

// FileMem stores every block at a fixed offset in a single backing
// file: block i occupies bytes [i*B, (i+1)*B), no header. On an I/O
// failure it latches Good() false and returns the error to the caller
// rather than aborting, so a long-running process such as pkg/device's
// adapter can decide how to react.
type FileMem struct {
	mu        sync.Mutex
	f         *os.File
	blocksize int
	size      uint64
	good      bool
}

// OpenFile opens fname (which must already exist and be at least
// size*blocksize bytes long) as a FileMem. Pre-sizing the file is the
// caller's job; OpenFile only validates that it is large enough.
func OpenFile(fname string, blocksize int, size uint64) (*FileMem, error) {
	const op = "FileMem.Open"

	f, err := os.OpenFile(fname, os.O_RDWR, 0o644)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.IOError, op, "opening backing file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, woramerr.Wrap(woramerr.IOError, op, "statting backing file", err)
	}
	need := int64(blocksize) * int64(size)
	if info.Size() < need {
		f.Close()
		return nil, woramerr.OutOfRangef(op, "backing file has %d bytes, need at least %d", info.Size(), need)
	}

	return &FileMem{f: f, blocksize: blocksize, size: size, good: true}, nil
}

// CreateFile creates (truncating if necessary) a backing file of
// exactly size*blocksize bytes and opens it as a FileMem.
func CreateFile(fname string, blocksize int, size uint64) (*FileMem, error) {
	const op = "FileMem.Create"

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.IOError, op, "creating backing file", err)
	}
	need := int64(blocksize) * int64(size)
	if err := f.Truncate(need); err != nil {
		f.Close()
		return nil, woramerr.Wrap(woramerr.IOError, op, "truncating backing file", err)
	}

	return &FileMem{f: f, blocksize: blocksize, size: size, good: true}, nil
}

func (m *FileMem) Blocksize() int { return m.blocksize }
func (m *FileMem) Size() uint64   { return m.size }

func (m *FileMem) Good() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.good
}

func (m *FileMem) latch(err error) error {
	if err != nil {
		m.good = false
	}
	return err
}

func (m *FileMem) Load(index uint64, buf []byte) error {
	const op = "FileMem.Load"
	if err := checkIndex(op, index, m.size); err != nil {
		return err
	}
	if err := checkBuf(op, buf, m.blocksize); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := int64(index) * int64(m.blocksize)
	n, err := m.f.ReadAt(buf, off)
	if err != nil {
		return m.latch(woramerr.Wrap(woramerr.IOError, op, "read failed", err))
	}
	if n != m.blocksize {
		return m.latch(woramerr.LengthErrorf(op, "short read: got %d bytes, want %d", n, m.blocksize))
	}
	return nil
}

func (m *FileMem) Store(index uint64, buf []byte) error {
	const op = "FileMem.Store"
	if err := checkIndex(op, index, m.size); err != nil {
		return err
	}
	if err := checkBuf(op, buf, m.blocksize); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := int64(index) * int64(m.blocksize)
	n, err := m.f.WriteAt(buf, off)
	if err != nil {
		return m.latch(woramerr.Wrap(woramerr.IOError, op, "write failed", err))
	}
	if n != m.blocksize {
		return m.latch(woramerr.LengthErrorf(op, "short write: wrote %d bytes, want %d", n, m.blocksize))
	}
	return nil
}

func (m *FileMem) Flush() error {
	const op = "FileMem.Flush"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Sync(); err != nil {
		return m.latch(woramerr.Wrap(woramerr.IOError, op, "sync failed", err))
	}
	return nil
}

// Close releases the underlying file descriptor.
func (m *FileMem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Close()
}
