package bmno

import (
	"io"

	"github.com/marmos91/woram/pkg/crypto"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

func ceilDiv(num, denom uint64) uint64 {
	return (num-1)/denom + 1
}

func metaRecordLen(n uint64, withIV bool) int {
	w := posmap.BytesFor(n)
	if w == 0 {
		w = 1
	}
	if withIV {
		w += ivSize
	}
	return w
}

// layout carves an m-block backend into a metadata area and a primary
// area: the metadata area must hold one record per primary slot, so
// the cut point is the smallest metaBlocks with metaBlocks*perBlock >=
// m - metaBlocks. innerBlocksize is what the metadata Memory exposes
// per block after any crypto wrapping.
func layout(innerBlocksize int, n, m uint64, withIV bool) (metaBlocks, primaryBlocks uint64, err error) {
	recLen := metaRecordLen(n, withIV)
	perBlock := uint64(innerBlocksize / recLen)
	if perBlock == 0 {
		return 0, 0, woramerr.OutOfRangef("bmno.layout", "blocksize %d too small for a %d-byte metadata record", innerBlocksize, recLen)
	}
	metaBlocks = ceilDiv(m, perBlock+1)
	if metaBlocks >= m {
		return 0, 0, woramerr.OutOfRangef("bmno.layout", "backend of %d blocks leaves no primary area", m)
	}
	return metaBlocks, m - metaBlocks, nil
}

// Kind builds encrypted BMNO instances for the generic assembly code.
type Kind struct {
	K   int
	Key crypto.Key
	Rng io.Reader
}

func (k Kind) fanout() int {
	if k.K <= 0 {
		return DefaultK
	}
	return k.K
}

func (k Kind) Pmax(blocksize int, n, m uint64) (uint64, error) {
	_, primary, err := layout(blocksize-ivSize, n, m, true)
	if err != nil {
		return 0, err
	}
	stash := uint64(StashCapacity(n))
	if primary <= stash+n {
		return 0, woramerr.OutOfRangef("BMNO.Pmax", "primary area %d too small for size %d + stashlen %d", primary, n, stash)
	}
	return primary - stash, nil
}

func (k Kind) PrefSize(blocksize int, n uint64) uint64 {
	stash := uint64(StashCapacity(n))
	primary := 2*n + stash + 1
	recLen := uint64(metaRecordLen(n, true))
	perBlock := uint64(blocksize-ivSize) / recLen
	if perBlock == 0 {
		perBlock = 1
	}
	return primary + ceilDiv(primary, perBlock)
}

func (k Kind) New(backend memory.Memory, n uint64) (woram.PlainWoram, error) {
	metaBlocks, primaryBlocks, err := layout(backend.Blocksize()-ivSize, n, backend.Size(), true)
	if err != nil {
		return nil, err
	}
	metaMem, primaryMem, err := split.ChunkSplit(backend, metaBlocks, primaryBlocks)
	if err != nil {
		return nil, err
	}
	b, err := New(metaMem, primaryMem, n, k.fanout(), k.Key, k.Rng)
	if err != nil {
		return nil, err
	}
	return b, nil
}

var _ woram.Kind = Kind{}

// RecKind builds BMNORec instances, the commit-driven variant with no
// encryption of its own.
type RecKind struct {
	K   int
	Rng io.Reader
}

func (k RecKind) fanout() int {
	if k.K <= 0 {
		return DefaultK
	}
	return k.K
}

func (k RecKind) Pmax(blocksize int, n, m uint64) (uint64, error) {
	_, primary, err := layout(blocksize, n, m, false)
	if err != nil {
		return 0, err
	}
	stash := uint64(StashCapacity(n))
	if primary <= stash+n {
		return 0, woramerr.OutOfRangef("BMNORec.Pmax", "primary area %d too small for size %d + stashlen %d", primary, n, stash)
	}
	return primary - stash, nil
}

func (k RecKind) PrefSize(blocksize int, n uint64) uint64 {
	stash := uint64(StashCapacity(n))
	primary := 2*n + stash + 1
	recLen := uint64(metaRecordLen(n, false))
	perBlock := uint64(blocksize) / recLen
	if perBlock == 0 {
		perBlock = 1
	}
	return primary + ceilDiv(primary, perBlock)
}

func (k RecKind) New(backend memory.Memory, n uint64) (woram.PlainWoram, error) {
	metaBlocks, primaryBlocks, err := layout(backend.Blocksize(), n, backend.Size(), false)
	if err != nil {
		return nil, err
	}
	metaMem, primaryMem, err := split.ChunkSplit(backend, metaBlocks, primaryBlocks)
	if err != nil {
		return nil, err
	}
	r, err := NewRec(metaMem, primaryMem, n, k.fanout(), k.Rng)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var _ woram.Kind = RecKind{}
