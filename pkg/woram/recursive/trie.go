package recursive

import (
	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woram/triepm"
	"github.com/marmos91/woram/pkg/woramerr"
)

// BuildTrie assembles a PMWoram whose position map is a pointer trie
// rather than a recursive packed-pointer stack: kind backs the
// payload WORAM, nodeKind backs the trie's internal-node store, and
// branching is the trie fan-out. The trie keeps the whole pointer
// structure at one level, trading the recursive stack's layered
// geometry for a fixed writes-per-store equal to the trie height.
func BuildTrie(backend memory.Memory, n uint64, kind, nodeKind woram.Kind, splitter split.Splitter, branching int) (*woram.PMWoram, error) {
	const op = "recursive.BuildTrie"
	if n == 0 {
		return nil, woramerr.OutOfRangef(op, "size must be > 0")
	}
	if branching < 2 {
		return nil, woramerr.InvalidAccessf(op, "branching factor must be >= 2, got %d", branching)
	}

	bs := backend.Blocksize()
	b0 := splitter.Blocksize0(bs)
	b1 := splitter.Blocksize1(bs)

	pmaxFull, err := kind.Pmax(b1, n, backend.Size())
	if err != nil {
		return nil, err
	}

	x, err := trieBlocks(nodeKind, b0, pmaxFull, n, branching)
	if err != nil {
		return nil, err
	}
	if x >= backend.Size() {
		return nil, woramerr.OutOfRangef(op, "backend of %d blocks cannot fit a %d-block trie plus payload", backend.Size(), x)
	}

	mem0, mem1, err := splitter.Split(backend, x, backend.Size()-x)
	if err != nil {
		return nil, err
	}
	w, err := kind.New(mem1, n)
	if err != nil {
		return nil, err
	}
	tp, err := triepm.New(mem0, nodeKind, branching, n, w.Pmax())
	if err != nil {
		return nil, err
	}
	logger.Debug("trie woram built", logger.Branching(branching), "size", n, "trie_blocks", x)
	return woram.New(w, tp)
}

// trieBlocks estimates how many backend blocks of the given blocksize
// the trie's node store wants, for leaf positions up to pmaxFull. One
// spare byte of pointer width over the leaf minimum covers the node
// store's own (wider) internal positions.
func trieBlocks(nodeKind woram.Kind, blocksize int, pmaxFull, n uint64, branching int) (uint64, error) {
	numnodes := triepm.NumNodes(n, branching)
	if numnodes == 0 {
		return 0, nil
	}
	ptr := posmap.BytesFor(pmaxFull) + 1
	nodeLen := branching * ptr
	per := uint64(blocksize / nodeLen)
	if per == 0 {
		return 0, woramerr.OutOfRangef("recursive.trieBlocks", "blocksize %d too small for a %d-byte trie node", blocksize, nodeLen)
	}
	return ceilDiv(nodeKind.PrefSize(nodeLen, numnodes), per), nil
}

// TriePrefSize returns the preferred total backend block count for a
// trie-mapped stack holding n logical blocks.
func TriePrefSize(kind, nodeKind woram.Kind, splitter split.Splitter, blocksize int, n uint64, branching int) (uint64, error) {
	b0 := splitter.Blocksize0(blocksize)
	b1 := splitter.Blocksize1(blocksize)
	m := kind.PrefSize(b1, n)
	pmax, err := kind.Pmax(b1, n, m)
	if err != nil {
		return 0, err
	}
	x, err := trieBlocks(nodeKind, b0, pmax, n, branching)
	if err != nil {
		return 0, err
	}
	return x + m, nil
}
