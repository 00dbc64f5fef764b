// Package posmap defines the PositionMap contract (a logical index to
// physical position lookup, the mechanism every WORAM scheme uses to
// remember where it last rewrote a block) plus LocalPosMap and
// PackPosMap, the flat in-RAM and packed-into-Memory realizations.
package posmap

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/pack"
	"github.com/marmos91/woram/pkg/woramerr"
)

// PositionMap maps a logical block index in [0, Size()) to a position
// in [0, Pmax()] or the sentinel Nptr() meaning "never written yet".
type PositionMap interface {
	Size() uint64
	Pmax() uint64
	Nptr() uint64

	Load(index uint64) (uint64, error)
	Store(index uint64, pos uint64) error
	Flush() error
}

// Committer is implemented by position maps (and Memories standing in
// for them) whose backing WORAM needs an explicit end-of-round commit
// step, such as a recursive BMNORec position map. LocalPosMap does
// not implement it; callers type-assert and skip the nudge when it is
// absent.
type Committer interface {
	Commit() error
}

// LocalPosMap keeps every position in a plain slice in RAM. Every
// entry starts at Nptr().
type LocalPosMap struct {
	pmax    uint64
	entries []uint64
}

// NewLocal allocates a LocalPosMap for n logical indices, each
// resolving to a position in [0,pmax].
func NewLocal(n, pmax uint64) *LocalPosMap {
	nptr := Nptr(pmax)
	entries := make([]uint64, n)
	for i := range entries {
		entries[i] = nptr
	}
	return &LocalPosMap{pmax: pmax, entries: entries}
}

func (m *LocalPosMap) Size() uint64 { return uint64(len(m.entries)) }
func (m *LocalPosMap) Pmax() uint64 { return m.pmax }
func (m *LocalPosMap) Nptr() uint64 { return Nptr(m.pmax) }
func (m *LocalPosMap) Flush() error { return nil }

func (m *LocalPosMap) Load(index uint64) (uint64, error) {
	if index >= m.Size() {
		return 0, woramerr.OutOfRangef("LocalPosMap.Load", "index %d >= size %d", index, m.Size())
	}
	return m.entries[index], nil
}

func (m *LocalPosMap) Store(index uint64, pos uint64) error {
	if index >= m.Size() {
		return woramerr.OutOfRangef("LocalPosMap.Store", "index %d >= size %d", index, m.Size())
	}
	if pos > m.pmax {
		return woramerr.OutOfRangef("LocalPosMap.Store", "position %d > pmax %d", pos, m.pmax)
	}
	m.entries[index] = pos
	return nil
}

var _ PositionMap = (*LocalPosMap)(nil)

// PackPosMap stores N position-map pointers of ptrsize =
// BytesFor(nptr) bytes each, packed densely into a backend Memory via
// pack.PackMem.
type PackPosMap struct {
	backend   *pack.PackMem
	size      uint64
	pmax      uint64
	ptrsize   int
	committer Committer // set when the raw backend (pre-packing) supports Commit
}

// NewPack builds a PackPosMap over backend for n logical indices with
// positions in [0,pmax]. backend must have at least
// pack.Size(backend.Blocksize(), n, ptrsize) blocks. If backend itself
// implements Committer (the recursive case: backend is a PMWoram whose
// plain WORAM needs a per-round housekeeping nudge even on rounds where
// this PackPosMap records no real Store), that Commit is forwarded by
// this PackPosMap's own Commit method.
func NewPack(backend memory.Memory, n, pmax uint64) (*PackPosMap, error) {
	ptrsize := BytesFor(Nptr(pmax))
	if ptrsize == 0 {
		ptrsize = 1
	}
	committer, _ := backend.(Committer)
	packed, err := pack.New(backend, ptrsize, n)
	if err != nil {
		return nil, err
	}
	// Every entry starts at Nptr(), as in LocalPosMap.
	nptr := make([]byte, ptrsize)
	putNum(nptr, Nptr(pmax))
	for i := uint64(0); i < n; i++ {
		if err := packed.Store(i, nptr); err != nil {
			return nil, err
		}
	}
	return &PackPosMap{backend: packed, size: n, pmax: pmax, ptrsize: ptrsize, committer: committer}, nil
}

// Commit forwards to the wrapped backend's Commit if it has one, and
// is a no-op otherwise.
func (m *PackPosMap) Commit() error {
	if m.committer == nil {
		return nil
	}
	return m.committer.Commit()
}

func (m *PackPosMap) Size() uint64 { return m.size }
func (m *PackPosMap) Pmax() uint64 { return m.pmax }
func (m *PackPosMap) Nptr() uint64 { return Nptr(m.pmax) }
func (m *PackPosMap) Flush() error { return m.backend.Flush() }

func (m *PackPosMap) Load(index uint64) (uint64, error) {
	buf := make([]byte, m.ptrsize)
	if err := m.backend.Load(index, buf); err != nil {
		return 0, err
	}
	return getNum(buf), nil
}

func (m *PackPosMap) Store(index uint64, pos uint64) error {
	if pos > m.pmax {
		return woramerr.OutOfRangef("PackPosMap.Store", "position %d > pmax %d", pos, m.pmax)
	}
	buf := make([]byte, m.ptrsize)
	putNum(buf, pos)
	return m.backend.Store(index, buf)
}

var _ PositionMap = (*PackPosMap)(nil)
