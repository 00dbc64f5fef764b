// Package detworam implements DetWoram, a deterministic write-only
// ORAM. Every logical store performs exactly one holding-area write
// plus a time-dependent (never data-dependent) number of long-term
// rewrites, so the physical write trace depends only on how many
// stores have happened so far, not on which index or value was stored.
package detworam

import (
	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

// DetWoram partitions its backend into a long-term area of N blocks
// (N == the logical Size()) and a holding area of H blocks. A position
// is the triple (holdpos, bitIndex, bitValue) packed into one integer:
// the long-term copy of a logical index is stale exactly when the bit
// at bitIndex of the long-term block disagrees with bitValue, in which
// case holding[holdpos] is authoritative.
type DetWoram struct {
	longterm memory.Memory // size N
	holding  memory.Memory // size H

	n         uint64 // logical size, == longterm.Size()
	h         uint64 // holding area size
	blockBits uint64

	longpos uint64
	holdpos uint64
}

// NewAreas builds a DetWoram directly from its two areas. The areas
// may each carry their own cipher wrapping (each is written strictly
// in cursor order, so even counter-mode encryption holds up); their
// block sizes must agree.
func NewAreas(longterm, holding memory.Memory) (*DetWoram, error) {
	const op = "DetWoram.NewAreas"
	n, h := longterm.Size(), holding.Size()
	if n == 0 || h == 0 {
		return nil, woramerr.OutOfRangef(op, "long-term size %d and holding size %d must both be > 0", n, h)
	}
	if longterm.Blocksize() != holding.Blocksize() {
		return nil, woramerr.MismatchErrorf(op, "long-term blocksize %d != holding blocksize %d", longterm.Blocksize(), holding.Blocksize())
	}
	return &DetWoram{
		longterm:  longterm,
		holding:   holding,
		n:         n,
		h:         h,
		blockBits: uint64(longterm.Blocksize()) * 8,
	}, nil
}

// New builds a DetWoram over backend, splitting it into a long-term
// area of n blocks followed by a holding area of h blocks (backend
// must have at least n+h blocks). n is the logical size; h trades
// housekeeping bandwidth against holding-area staleness.
func New(backend memory.Memory, n, h uint64) (*DetWoram, error) {
	longterm, holding, err := split.ChunkSplit(backend, n, h)
	if err != nil {
		return nil, err
	}
	return NewAreas(longterm, holding)
}

func (d *DetWoram) Blocksize() int { return d.longterm.Blocksize() }
func (d *DetWoram) Size() uint64   { return d.n }
func (d *DetWoram) Good() bool     { return d.longterm.Good() && d.holding.Good() }

// Pmax is H*blockBits*2 - 1: holdpos in [0,H), bitIndex in
// [0,blockBits), bitValue in {0,1}.
func (d *DetWoram) Pmax() uint64 { return d.h*d.blockBits*2 - 1 }

func (d *DetWoram) Flush() error {
	if err := d.longterm.Flush(); err != nil {
		return err
	}
	return d.holding.Flush()
}

func packPosition(holdpos, bitIndex uint64, bitValue int, blockBits uint64) uint64 {
	return (holdpos*blockBits+bitIndex)*2 + uint64(bitValue)
}

func unpackPosition(pos, blockBits uint64) (holdpos, bitIndex uint64, bitValue int) {
	bitValue = int(pos & 1)
	pos >>= 1
	bitIndex = pos % blockBits
	holdpos = pos / blockBits
	return
}

func getBit(buf []byte, bitIndex uint64) int {
	b := buf[bitIndex/8]
	return int((b >> (bitIndex % 8)) & 1)
}

// firstDiffBit returns the lowest bit index at which a and b differ,
// and false if they are identical.
func firstDiffBit(a, b []byte) (uint64, bool) {
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(1<<uint(bit)) != 0 {
				return uint64(i)*8 + uint64(bit), true
			}
		}
	}
	return 0, false
}

// Load reads the authoritative block for logical index given its
// recorded position: the long-term copy unless position marks it
// stale, in which case the holding-area copy is authoritative.
func (d *DetWoram) Load(index, position uint64, buf []byte) error {
	const op = "DetWoram.Load"
	if index >= d.n {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, d.n)
	}
	if err := d.longterm.Load(index, buf); err != nil {
		return err
	}
	nptr := posmap.Nptr(d.Pmax())
	if position == nptr {
		return nil
	}
	holdpos, bitIndex, bitValue := unpackPosition(position, d.blockBits)
	if getBit(buf, bitIndex) != bitValue {
		return d.holding.Load(holdpos, buf)
	}
	return nil
}

// longTermCatchup runs the long-term housekeeping pass that every
// Store and DummyWrite performs first: it brings the long-term area's
// rewrite progress up to the fraction (holdpos+1)/H, so that by the
// time the holding cursor has lapped once, every long-term slot has
// been rewritten at least once. The cursors count monotonically; the
// areas are addressed modulo their sizes.
func (d *DetWoram) longTermCatchup(pm posmap.PositionMap) error {
	target := ((d.holdpos + 1) * d.n) / d.h
	n := target - d.longpos
	tmp := make([]byte, d.Blocksize())
	for i := uint64(0); i < n; i++ {
		lp := d.longpos % d.n
		pos, err := pm.Load(lp)
		if err != nil {
			return err
		}
		if pos == pm.Nptr() || pos > d.Pmax() {
			pos = posmap.Nptr(d.Pmax())
		}
		if err := d.Load(lp, pos, tmp); err != nil {
			return err
		}
		if err := d.longterm.Store(lp, tmp); err != nil {
			return err
		}
		d.longpos++
	}
	logger.Debug("detworam long-term catchup", logger.LongPos(d.longpos%d.n), logger.HoldPos(d.holdpos%d.h), logger.LongRun(n))
	return nil
}

func (d *DetWoram) Store(index uint64, buf []byte, pm posmap.PositionMap) (uint64, error) {
	const op = "DetWoram.Store"
	if index >= d.n {
		return 0, woramerr.OutOfRangef(op, "index %d >= size %d", index, d.n)
	}
	if err := woramerr.CheckLength(op, len(buf), d.Blocksize()); err != nil {
		return 0, err
	}
	if err := d.longTermCatchup(pm); err != nil {
		return 0, err
	}

	ltBlock := make([]byte, d.Blocksize())
	if err := d.longterm.Load(index, ltBlock); err != nil {
		return 0, err
	}
	bitIndex, differs := firstDiffBit(ltBlock, buf)
	if !differs {
		bitIndex = 0
	}
	bitValue := getBit(buf, bitIndex) // long-term is stale iff its bit disagrees

	holdpos := d.holdpos % d.h
	if err := d.holding.Store(holdpos, buf); err != nil {
		return 0, err
	}
	pos := packPosition(holdpos, bitIndex, bitValue, d.blockBits)
	d.holdpos++

	logger.Debug("detworam store", logger.Index(index), logger.HoldPos(holdpos), logger.Position(pos))
	return pos, nil
}

func (d *DetWoram) DummyWrite(pm posmap.PositionMap) error {
	if err := d.longTermCatchup(pm); err != nil {
		return err
	}
	zero := make([]byte, d.Blocksize())
	holdpos := d.holdpos % d.h
	if err := d.holding.Store(holdpos, zero); err != nil {
		return err
	}
	d.holdpos++
	return nil
}

var _ woram.PlainWoram = (*DetWoram)(nil)
