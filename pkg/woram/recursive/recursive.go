// Package recursive assembles a full WORAM stack over a single
// backing Memory: a plain WORAM of the requested kind for the
// payload, and a position map that is itself a packed pointer array
// stored in a smaller WORAM of the same kind, recursing until the
// packed position map fits in a single backend block. At that point a
// TrivialWoram holds the last few pointers, rewriting itself wholly
// on every store.
//
// At each level the backend is carved in two by a split.Splitter: the
// first chunk backs the position map of this level, the second the
// payload WORAM. The pointer width of each position map is derived
// from the pmax of the WORAM it serves, so every level's geometry
// follows from the one below it.
package recursive

import (
	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

// maxDepth bounds the recursion. A stack whose pointer count does not
// shrink level over level is misconfigured, not deep.
const maxDepth = 64

func ceilDiv(num, denom uint64) uint64 {
	return (num-1)/denom + 1
}

// pmBlocks returns how many blocks of the given blocksize are needed
// to hold n packed pointers whose values go up to pmax (plus the
// sentinel).
func pmBlocks(blocksize int, n, pmax uint64) (uint64, error) {
	ptr := posmap.BytesFor(posmap.Nptr(pmax))
	if ptr == 0 {
		ptr = 1
	}
	per := uint64(blocksize / ptr)
	if per == 0 {
		return 0, woramerr.OutOfRangef("recursive.pmBlocks", "blocksize %d too small for %d-byte pointers", blocksize, ptr)
	}
	return ceilDiv(n, per), nil
}

// PrefSize returns the preferred total backend block count for a
// recursive stack holding n logical blocks of the given blocksize:
// the payload WORAM's own preference plus, recursively, the position
// map's.
func PrefSize(kind woram.Kind, splitter split.Splitter, blocksize int, n uint64) (uint64, error) {
	return prefSize(kind, splitter, blocksize, n, 0)
}

func prefSize(kind woram.Kind, splitter split.Splitter, blocksize int, n uint64, depth int) (uint64, error) {
	if depth > maxDepth {
		return 0, woramerr.LengthErrorf("recursive.PrefSize", "recursion exceeds %d levels", maxDepth)
	}
	if n <= 1 {
		return n, nil
	}
	b0 := splitter.Blocksize0(blocksize)
	b1 := splitter.Blocksize1(blocksize)
	m := kind.PrefSize(b1, n)
	pmax, err := kind.Pmax(b1, n, m)
	if err != nil {
		return 0, err
	}
	pmb, err := pmBlocks(b0, n, pmax)
	if err != nil {
		return 0, err
	}
	if pmb <= 1 {
		return pmb + m, nil
	}
	sub, err := prefSize(kind, splitter, b0, pmb, depth+1)
	if err != nil {
		return 0, err
	}
	return sub + m, nil
}

// Build assembles a PMWoram over backend for n logical blocks, using
// kind for every plain-WORAM level and splitter to carve each level's
// backend into its position-map and payload chunks.
func Build(backend memory.Memory, n uint64, kind woram.Kind, splitter split.Splitter) (*woram.PMWoram, error) {
	return build(backend, n, kind, splitter, 0)
}

func build(backend memory.Memory, n uint64, kind woram.Kind, splitter split.Splitter, depth int) (*woram.PMWoram, error) {
	const op = "recursive.Build"
	if depth > maxDepth {
		return nil, woramerr.LengthErrorf(op, "recursion exceeds %d levels", maxDepth)
	}
	if n == 0 {
		return nil, woramerr.OutOfRangef(op, "size must be > 0")
	}

	bs := backend.Blocksize()
	b0 := splitter.Blocksize0(bs)
	b1 := splitter.Blocksize1(bs)

	// Plan the cut with the pmax the payload would have if it owned
	// the whole backend: an upper bound, so the position-map chunk is
	// never undersized.
	pmaxFull, err := kind.Pmax(b1, n, backend.Size())
	if err != nil {
		return nil, err
	}
	pmb, err := pmBlocks(b0, n, pmaxFull)
	if err != nil {
		return nil, err
	}

	var x uint64
	base := pmb <= 1
	if base {
		x = pmb
	} else {
		x, err = prefSize(kind, splitter, b0, pmb, depth+1)
		if err != nil {
			return nil, err
		}
	}
	if x >= backend.Size() {
		return nil, woramerr.OutOfRangef(op, "backend of %d blocks cannot fit a %d-block position map plus payload", backend.Size(), x)
	}

	mem0, mem1, err := splitter.Split(backend, x, backend.Size()-x)
	if err != nil {
		return nil, err
	}
	w, err := kind.New(mem1, n)
	if err != nil {
		return nil, err
	}
	pmax := w.Pmax()

	var pm posmap.PositionMap
	if base {
		trivial, err := woram.NewTrivial(mem0, mem0.Size())
		if err != nil {
			return nil, err
		}
		pm, err = posmap.NewPack(trivial, n, pmax)
		if err != nil {
			return nil, err
		}
	} else {
		subN, err := pmBlocks(mem0.Blocksize(), n, pmax)
		if err != nil {
			return nil, err
		}
		if subN >= n {
			return nil, woramerr.LengthErrorf(op, "position map of %d blocks does not shrink below %d entries; recursion would not terminate", subN, n)
		}
		sub, err := build(mem0, subN, kind, splitter, depth+1)
		if err != nil {
			return nil, err
		}
		pm, err = posmap.NewPack(sub, n, pmax)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("recursive woram level built", logger.LevelAttr(depth), "size", n, "pmax", pmax, "pm_blocks", x)
	return woram.New(w, pm)
}
