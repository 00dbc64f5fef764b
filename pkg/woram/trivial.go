package woram

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/woramerr"
)

// TrivialWoram is the degenerate base-case WORAM: it behaves as an
// ordinary Memory, but every Store rewrites every one of its Size()
// backend blocks in index order, writing the target index with the new
// value and every other index with a read-back of its current content.
// The observable write trace is therefore always the fixed sequence
// 0..Size()-1 regardless of which index was written or what value it
// held, at O(size) cost per write. Only useful at the very bottom of a
// recursion, where size is a handful of blocks.
type TrivialWoram struct {
	backend memory.Memory
	size    uint64
}

// NewTrivial wraps the first n blocks of backend as a TrivialWoram.
// Positions and logical indices coincide, so no position map is
// involved.
func NewTrivial(backend memory.Memory, n uint64) (*TrivialWoram, error) {
	if n > backend.Size() {
		return nil, woramerr.OutOfRangef("TrivialWoram.New", "size %d exceeds backend size %d", n, backend.Size())
	}
	return &TrivialWoram{backend: backend, size: n}, nil
}

func (t *TrivialWoram) Blocksize() int { return t.backend.Blocksize() }
func (t *TrivialWoram) Size() uint64   { return t.size }
func (t *TrivialWoram) Good() bool     { return t.backend.Good() }
func (t *TrivialWoram) Flush() error   { return t.backend.Flush() }

func (t *TrivialWoram) Load(index uint64, buf []byte) error {
	if index >= t.size {
		return woramerr.OutOfRangef("TrivialWoram.Load", "index %d >= size %d", index, t.size)
	}
	return t.backend.Load(index, buf)
}

func (t *TrivialWoram) Store(index uint64, buf []byte) error {
	const op = "TrivialWoram.Store"
	if index >= t.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, t.size)
	}
	if err := woramerr.CheckLength(op, len(buf), t.Blocksize()); err != nil {
		return err
	}
	tmp := make([]byte, t.Blocksize())
	for pos := uint64(0); pos < t.size; pos++ {
		if pos == index {
			if err := t.backend.Store(pos, buf); err != nil {
				return err
			}
			continue
		}
		if err := t.backend.Load(pos, tmp); err != nil {
			return err
		}
		if err := t.backend.Store(pos, tmp); err != nil {
			return err
		}
	}
	return nil
}

var _ memory.Memory = (*TrivialWoram)(nil)
