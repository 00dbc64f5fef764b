// Package split partitions one Memory into two disjoint,
// offset-translated views over the same backend. It is the mechanism
// every recursive WORAM uses to carve a single backing Memory into a
// position-map chunk and a payload chunk, optionally wrapping either
// half in its own cipher stream.
package split

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/woramerr"
)

// OffsetMem presents blocks [offset, offset+size) of a backend Memory
// as a standalone Memory numbered from zero.
type OffsetMem struct {
	backend memory.Memory
	size    uint64
	offset  uint64
}

// NewOffset builds an OffsetMem over backend's [offset, offset+size)
// range. The caller must ensure offset+size <= backend.Size(); this is
// checked once at construction rather than on every access.
func NewOffset(backend memory.Memory, size, offset uint64) (*OffsetMem, error) {
	if offset+size > backend.Size() {
		return nil, woramerr.OutOfRangef("OffsetMem.New", "offset %d + size %d exceeds backend size %d", offset, size, backend.Size())
	}
	return &OffsetMem{backend: backend, size: size, offset: offset}, nil
}

func (m *OffsetMem) Blocksize() int   { return m.backend.Blocksize() }
func (m *OffsetMem) Size() uint64     { return m.size }
func (m *OffsetMem) Offset() uint64   { return m.offset }
func (m *OffsetMem) Good() bool       { return m.backend.Good() }
func (m *OffsetMem) Flush() error     { return m.backend.Flush() }

func (m *OffsetMem) Load(index uint64, buf []byte) error {
	if index >= m.size {
		return woramerr.OutOfRangef("OffsetMem.Load", "index %d >= size %d", index, m.size)
	}
	return m.backend.Load(m.offset+index, buf)
}

func (m *OffsetMem) Store(index uint64, buf []byte) error {
	if index >= m.size {
		return woramerr.OutOfRangef("OffsetMem.Store", "index %d >= size %d", index, m.size)
	}
	return m.backend.Store(m.offset+index, buf)
}

var _ memory.Memory = (*OffsetMem)(nil)

// ChunkSplit splits backend into two contiguous, non-overlapping
// OffsetMem views: blocks [0, x) and [x, x+y). Both views share the
// same backend; their address ranges are disjoint, so a write through
// one is never visible through the other.
func ChunkSplit(backend memory.Memory, x, y uint64) (mem0, mem1 *OffsetMem, err error) {
	if x+y > backend.Size() {
		return nil, nil, woramerr.OutOfRangef("ChunkSplit", "x %d + y %d exceeds backend size %d", x, y, backend.Size())
	}
	mem0, err = NewOffset(backend, x, 0)
	if err != nil {
		return nil, nil, err
	}
	mem1, err = NewOffset(backend, y, x)
	if err != nil {
		return nil, nil, err
	}
	return mem0, mem1, nil
}
