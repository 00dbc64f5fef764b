// Package woram defines the PlainWoram contract every write-only ORAM
// scheme in this module implements (DetWoram, BMNO, OneWriteWoram),
// plus PMWoram, which pairs a PlainWoram with a posmap.PositionMap to
// recover ordinary memory.Memory semantics, and TrivialWoram, the
// rewrite-everything base case.
package woram

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woramerr"
)

// PlainWoram is a write-only ORAM that requires the caller to supply
// and maintain positions externally (via a posmap.PositionMap): it
// does not know where a given logical index currently lives, only how
// to place and retrieve blocks at a position once told.
type PlainWoram interface {
	Blocksize() int
	Size() uint64
	Pmax() uint64
	Good() bool

	// Load reads the block at logical index, given the position
	// previously returned by Store (or Nptr(Pmax()) if the index has
	// never been written: OneWriteWoram and the BMNO variants then zero
	// buf, while DetWoram returns its long-term block as stored).
	Load(index, position uint64, buf []byte) error

	// Store writes buf to the given logical index, consulting and
	// possibly updating pm during its own housekeeping, and returns
	// the new position the caller must record for the index. A scheme
	// that buffers the block internally (BMNO's stash) may return
	// Nptr(Pmax()) to signal that no new placement happened and the
	// position map needs no update from the caller.
	Store(index uint64, buf []byte, pm posmap.PositionMap) (uint64, error)

	// DummyWrite performs the housekeeping a Store would do without
	// placing a real logical block. Every scheme supports it so that a
	// caller driving several WORAMs in lockstep (the trie position
	// map, a recursive stack) can keep their write traces uniform.
	DummyWrite(pm posmap.PositionMap) error

	Flush() error
}

// PMWoram composes a PlainWoram W and a posmap.PositionMap P into an
// ordinary memory.Memory: Load resolves P.Load(i) to a position
// (mapping P's nptr to W's) then calls W.Load; Store calls W.Store
// (which may itself consult and update P during housekeeping) and then
// records the returned position in P.
type PMWoram struct {
	w PlainWoram
	p posmap.PositionMap
}

// New builds a PMWoram over plain woram w and position map p. The two
// must agree on Size(), and p's positions must be wide enough to hold
// any position w can return.
func New(w PlainWoram, p posmap.PositionMap) (*PMWoram, error) {
	const op = "PMWoram.New"
	if w.Size() != p.Size() {
		return nil, woramerr.MismatchErrorf(op, "woram size %d != posmap size %d", w.Size(), p.Size())
	}
	if p.Pmax() < w.Pmax() {
		return nil, woramerr.MismatchErrorf(op, "posmap pmax %d too small for woram pmax %d", p.Pmax(), w.Pmax())
	}
	return &PMWoram{w: w, p: p}, nil
}

func (m *PMWoram) Blocksize() int { return m.w.Blocksize() }
func (m *PMWoram) Size() uint64   { return m.w.Size() }
func (m *PMWoram) Good() bool     { return m.w.Good() }

func (m *PMWoram) Load(index uint64, buf []byte) error {
	const op = "PMWoram.Load"
	if index >= m.Size() {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, m.Size())
	}
	pos, err := m.p.Load(index)
	if err != nil {
		return err
	}
	if pos == m.p.Nptr() {
		pos = posmap.Nptr(m.w.Pmax())
	} else if pos > m.w.Pmax() {
		return woramerr.OutOfRangef(op, "posmap returned position %d > pmax %d", pos, m.w.Pmax())
	}
	return m.w.Load(index, pos, buf)
}

func (m *PMWoram) Store(index uint64, buf []byte) error {
	const op = "PMWoram.Store"
	if index >= m.Size() {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, m.Size())
	}
	pos, err := m.w.Store(index, buf, m.p)
	if err != nil {
		return err
	}
	if pos == posmap.Nptr(m.w.Pmax()) {
		// The scheme is holding the block internally and has already
		// kept the position map consistent itself.
		return nil
	}
	if pos > m.w.Pmax() {
		return woramerr.OutOfRangef(op, "woram returned position %d > pmax %d", pos, m.w.Pmax())
	}
	return m.p.Store(index, pos)
}

func (m *PMWoram) Flush() error {
	if err := m.w.Flush(); err != nil {
		return err
	}
	return m.p.Flush()
}

// Commit performs a dummy write against the wrapped plain WORAM,
// without touching the wrapped position map. This is what lets a
// PMWoram stand in as a recursive position map's own backing Memory
// (see posmap.Committer): a round that produces no real Store against
// this PMWoram still advances its plain WORAM's housekeeping by one
// step, keeping the write trace uniform across rounds.
func (m *PMWoram) Commit() error {
	return m.w.DummyWrite(m.p)
}

var _ posmap.Committer = (*PMWoram)(nil)

// Woram exposes the wrapped PlainWoram, for callers (the recursive
// factory) that need to drive its DummyWrite directly.
func (m *PMWoram) Woram() PlainWoram { return m.w }

// PosMap exposes the wrapped position map.
func (m *PMWoram) PosMap() posmap.PositionMap { return m.p }

var _ memory.Memory = (*PMWoram)(nil)
