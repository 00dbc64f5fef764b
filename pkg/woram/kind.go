package woram

import (
	"github.com/marmos91/woram/pkg/crypto"
	"github.com/marmos91/woram/pkg/memory"
)

// Kind abstracts over the plain-WORAM schemes so that generic
// assembly code (the recursive factory, the trie position map) can
// size and build a WORAM without knowing which scheme it is. The
// sizing queries are pure arithmetic: they must agree with what New
// actually produces, because callers derive pointer widths from Pmax
// before any backend has been split.
type Kind interface {
	// Pmax returns the largest position a WORAM of this kind returns
	// from Store when built for n logical blocks over an m-block
	// backend with the given blocksize.
	Pmax(blocksize int, n, m uint64) (uint64, error)

	// PrefSize returns the preferred backend block count for n
	// logical blocks of the given blocksize, the scheme's own
	// bandwidth/space tradeoff.
	PrefSize(blocksize int, n uint64) uint64

	// New builds the WORAM for n logical blocks over backend,
	// partitioning backend internally however the scheme needs.
	New(backend memory.Memory, n uint64) (PlainWoram, error)
}

// OneWriteKind builds OneWriteWoram instances. Mult controls how many
// backend blocks are provisioned per logical block; each logical block
// can be rewritten Mult times on average before the backend runs out.
// A non-nil Key wraps the backend in AES-CTR, which the scheme's
// append-only write order satisfies trivially.
type OneWriteKind struct {
	Mult uint64
	Key  crypto.Key
}

func (k OneWriteKind) mult() uint64 {
	if k.Mult == 0 {
		return 10
	}
	return k.Mult
}

func (k OneWriteKind) Pmax(_ int, _, m uint64) (uint64, error) {
	return m - 1, nil
}

func (k OneWriteKind) PrefSize(_ int, n uint64) uint64 { return k.mult() * n }

func (k OneWriteKind) New(backend memory.Memory, n uint64) (PlainWoram, error) {
	if k.Key != nil {
		wrapped, err := crypto.NewCtrCrypt(backend, k.Key, 0)
		if err != nil {
			return nil, err
		}
		backend = wrapped
	}
	o, err := NewOneWrite(backend, n)
	if err != nil {
		return nil, err
	}
	return o, nil
}

var _ Kind = OneWriteKind{}
