package detworam

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

// Kind builds DetWoram instances for the generic assembly code. Grow
// controls how many backend blocks are provisioned per logical block;
// the blocks beyond the first n become the holding area. Split, when
// set, carves the backend into the two areas with a cipher around
// each (both areas are written strictly in cursor order, which is
// what lets counter-mode wrapping work here).
type Kind struct {
	Grow  uint64
	Split split.Splitter
}

func (k Kind) grow() uint64 {
	if k.Grow < 2 {
		return 2
	}
	return k.Grow
}

func (k Kind) splitter() split.Splitter {
	if k.Split == nil {
		return split.Plain{}
	}
	return k.Split
}

func (k Kind) Pmax(blocksize int, n, m uint64) (uint64, error) {
	if m <= n {
		return 0, woramerr.OutOfRangef("DetWoram.Pmax", "backend size %d must exceed logical size %d", m, n)
	}
	h := m - n
	blockBits := uint64(k.splitter().Blocksize0(blocksize)) * 8
	return h*blockBits*2 - 1, nil
}

func (k Kind) PrefSize(_ int, n uint64) uint64 { return k.grow() * n }

func (k Kind) New(backend memory.Memory, n uint64) (woram.PlainWoram, error) {
	if backend.Size() <= n {
		return nil, woramerr.OutOfRangef("DetWoram.Kind", "backend size %d must exceed logical size %d", backend.Size(), n)
	}
	longterm, holding, err := k.splitter().Split(backend, n, backend.Size()-n)
	if err != nil {
		return nil, err
	}
	d, err := NewAreas(longterm, holding)
	if err != nil {
		return nil, err
	}
	return d, nil
}

var _ woram.Kind = Kind{}
