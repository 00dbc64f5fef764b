package woram

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woramerr"
)

// OneWriteWoram is an append-only WORAM: every Store (and DummyWrite)
// writes to the next free backend slot and advances a cursor, failing
// once the backend is exhausted. Because position equals insertion
// order, the index argument to Store is intentionally ignored, and
// Load never consults it either; the caller must already know the
// position. The signature stays uniform with the other schemes so
// PMWoram can wrap any of them.
type OneWriteWoram struct {
	backend memory.Memory
	size    uint64
	nextpos uint64
}

// NewOneWrite wraps backend as a OneWriteWoram for n logical blocks.
// Pmax is backend.Size()-1; the backend may hold many more blocks than
// n, since every rewrite of a logical block consumes a fresh slot.
func NewOneWrite(backend memory.Memory, n uint64) (*OneWriteWoram, error) {
	if n > backend.Size() {
		return nil, woramerr.OutOfRangef("OneWriteWoram.New", "size %d exceeds backend size %d", n, backend.Size())
	}
	return &OneWriteWoram{backend: backend, size: n}, nil
}

func (o *OneWriteWoram) Blocksize() int { return o.backend.Blocksize() }
func (o *OneWriteWoram) Size() uint64   { return o.size }
func (o *OneWriteWoram) Pmax() uint64   { return o.backend.Size() - 1 }
func (o *OneWriteWoram) Good() bool     { return o.backend.Good() }
func (o *OneWriteWoram) Flush() error   { return o.backend.Flush() }

// NextPos reports the next slot that will be written.
func (o *OneWriteWoram) NextPos() uint64 { return o.nextpos }

// RemainingWrites reports how many more Store or DummyWrite calls will
// succeed before the backend is exhausted.
func (o *OneWriteWoram) RemainingWrites() uint64 { return o.backend.Size() - o.nextpos }

func (o *OneWriteWoram) Load(_ uint64, position uint64, buf []byte) error {
	const op = "OneWriteWoram.Load"
	if position == posmap.Nptr(o.Pmax()) {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if position >= o.backend.Size() {
		return woramerr.OutOfRangef(op, "position %d >= backend size %d", position, o.backend.Size())
	}
	return o.backend.Load(position, buf)
}

func (o *OneWriteWoram) Store(_ uint64, buf []byte, _ posmap.PositionMap) (uint64, error) {
	const op = "OneWriteWoram.Store"
	if o.nextpos == o.backend.Size() {
		return 0, woramerr.LengthErrorf(op, "backend exhausted: nextpos %d == size %d", o.nextpos, o.backend.Size())
	}
	pos := o.nextpos
	if err := o.backend.Store(pos, buf); err != nil {
		return 0, err
	}
	o.nextpos++
	return pos, nil
}

func (o *OneWriteWoram) DummyWrite(_ posmap.PositionMap) error {
	const op = "OneWriteWoram.DummyWrite"
	if o.nextpos == o.backend.Size() {
		return woramerr.LengthErrorf(op, "backend exhausted: nextpos %d == size %d", o.nextpos, o.backend.Size())
	}
	zero := make([]byte, o.Blocksize())
	if err := o.backend.Store(o.nextpos, zero); err != nil {
		return err
	}
	o.nextpos++
	return nil
}

var _ PlainWoram = (*OneWriteWoram)(nil)
