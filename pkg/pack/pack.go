// Package pack implements PackMem, which packs several small
// fixed-size blocks into each block of a larger backend Memory:
// floor(outer/inner) inner blocks per outer block, any remainder left
// as slack. It keeps exactly one read-cache slot and one write-cache
// slot (with a dirty flag) rather than caching every packed block, so
// at most one outer block is dirty at any time.
package pack

import (
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/woramerr"
)

// Size returns the number of outer (backend) blocks needed to pack n
// blocks of blocksize bytes each into outer blocks of outerSize
// bytes, i.e. ceiling(n / floor(outerSize/blocksize)).
func Size(outerSize int, n uint64, blocksize int) uint64 {
	perBlock := outerSize / blocksize
	return ceilDiv(n, uint64(perBlock))
}

func ceilDiv(num, denom uint64) uint64 {
	return (num-1)/denom + 1
}

// PackMem presents backend (whose blocks are at least blocksize bytes
// each, any remainder past the last whole inner block left as slack)
// as a Memory of smaller, densely packed blocks.
type PackMem struct {
	backend   memory.Memory
	blocksize int
	size      uint64
	perBlock  uint64

	wblock  []byte
	wind    uint64 // backend.Size() sentinel = "no write block loaded"
	wdirty  bool
	rblock  []byte
	rind    uint64 // backend.Size() sentinel = "no read block loaded"
}

// New builds a PackMem over backend packing `size` blocks of
// `blocksize` bytes. backend.Blocksize() must be at least blocksize;
// when the two are equal the cache logic degenerates to a plain
// pass-through with no added cost.
func New(backend memory.Memory, blocksize int, size uint64) (*PackMem, error) {
	const op = "PackMem.New"
	outer := backend.Blocksize()
	if blocksize <= 0 || outer < blocksize {
		return nil, woramerr.InvalidAccessf(op, "cannot pack %d-byte blocks into a %d-byte backend block", blocksize, outer)
	}
	perBlock := uint64(outer / blocksize)
	backblocks := ceilDiv(size, perBlock)
	if backend.Size() < backblocks {
		return nil, woramerr.OutOfRangef(op, "backend has %d blocks, need %d to pack %d blocks of size %d", backend.Size(), backblocks, size, blocksize)
	}

	sentinel := backend.Size()
	return &PackMem{
		backend:   backend,
		blocksize: blocksize,
		size:      size,
		perBlock:  perBlock,
		wblock:    make([]byte, outer),
		wind:      sentinel,
		rblock:    make([]byte, outer),
		rind:      sentinel,
	}, nil
}

func (p *PackMem) Blocksize() int { return p.blocksize }
func (p *PackMem) Size() uint64   { return p.size }
func (p *PackMem) Good() bool     { return p.backend.Good() }

func (p *PackMem) noBlockLoaded() uint64 { return p.backend.Size() }

func (p *PackMem) Load(index uint64, buf []byte) error {
	const op = "PackMem.Load"
	if index >= p.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, p.size)
	}
	if err := woramerr.CheckLength(op, len(buf), p.blocksize); err != nil {
		return err
	}

	outer := index / p.perBlock
	instart := (index % p.perBlock) * uint64(p.blocksize)

	if outer == p.wind {
		copy(buf, p.wblock[instart:instart+uint64(p.blocksize)])
		return nil
	}
	if outer != p.rind {
		if err := p.backend.Load(outer, p.rblock); err != nil {
			return err
		}
		p.rind = outer
	}
	copy(buf, p.rblock[instart:instart+uint64(p.blocksize)])
	return nil
}

func (p *PackMem) Store(index uint64, buf []byte) error {
	const op = "PackMem.Store"
	if index >= p.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, p.size)
	}
	if err := woramerr.CheckLength(op, len(buf), p.blocksize); err != nil {
		return err
	}

	outer := index / p.perBlock
	instart := (index % p.perBlock) * uint64(p.blocksize)

	if outer != p.wind {
		if p.wdirty {
			if err := p.backend.Store(p.wind, p.wblock); err != nil {
				return err
			}
			p.wdirty = false
		}
		if outer == p.rind {
			copy(p.wblock, p.rblock)
			p.rind = p.noBlockLoaded()
		} else if err := p.backend.Load(outer, p.wblock); err != nil {
			return err
		}
		p.wind = outer
	}
	copy(p.wblock[instart:instart+uint64(p.blocksize)], buf)
	p.wdirty = true
	return nil
}

func (p *PackMem) Flush() error {
	if p.wdirty {
		if err := p.backend.Store(p.wind, p.wblock); err != nil {
			return err
		}
		p.wdirty = false
	}
	return p.backend.Flush()
}

var _ memory.Memory = (*PackMem)(nil)
