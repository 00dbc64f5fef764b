package split

import (
	"io"
	"math"

	"github.com/marmos91/woram/pkg/crypto"
	"github.com/marmos91/woram/pkg/memory"
)

// Splitter abstracts over the ways a backend is carved into a
// position-map half and a payload half: a plain chunk split, or a
// chunk split with a cipher wrapped around one or both halves. The
// Blocksize queries report what block size each half will expose for
// a given backend block size, so assembly code can plan the cut point
// before any Memory has been constructed.
type Splitter interface {
	Split(backend memory.Memory, x, y uint64) (mem0, mem1 memory.Memory, err error)
	Blocksize0(backendBlocksize int) int
	Blocksize1(backendBlocksize int) int
}

// Plain is the identity Splitter: a bare ChunkSplit.
type Plain struct{}

func (Plain) Split(backend memory.Memory, x, y uint64) (memory.Memory, memory.Memory, error) {
	m0, m1, err := ChunkSplit(backend, x, y)
	if err != nil {
		return nil, nil, err
	}
	return m0, m1, nil
}

func (Plain) Blocksize0(b int) int { return b }
func (Plain) Blocksize1(b int) int { return b }

var _ Splitter = Plain{}

// CtrCryptSplit wraps both halves of a ChunkSplit in AES-CTR, giving
// each its own cipher stream. The second half starts its counter at
// the middle of the counter space so the two streams never collide.
type CtrCryptSplit struct {
	Key crypto.Key
}

func (s CtrCryptSplit) Split(backend memory.Memory, x, y uint64) (memory.Memory, memory.Memory, error) {
	m0, m1, err := ChunkSplit(backend, x, y)
	if err != nil {
		return nil, nil, err
	}
	c0, err := crypto.NewCtrCrypt(m0, s.Key, 0)
	if err != nil {
		return nil, nil, err
	}
	c1, err := crypto.NewCtrCrypt(m1, s.Key, math.MaxUint64/2)
	if err != nil {
		return nil, nil, err
	}
	return c0, c1, nil
}

func (CtrCryptSplit) Blocksize0(b int) int { return b }
func (CtrCryptSplit) Blocksize1(b int) int { return b }

var _ Splitter = CtrCryptSplit{}

// RandCryptSplit wraps the first half of a ChunkSplit in AES-CBC with
// per-write random IVs, leaving the second half bare. Used when the
// position-map area must tolerate random-order writes (so CTR mode is
// unusable there) but the payload half carries its own scheme-level
// encryption.
type RandCryptSplit struct {
	Key crypto.Key
	Rng io.Reader
}

func (s RandCryptSplit) Split(backend memory.Memory, x, y uint64) (memory.Memory, memory.Memory, error) {
	m0, m1, err := ChunkSplit(backend, x, y)
	if err != nil {
		return nil, nil, err
	}
	c0, err := crypto.NewRandCrypt(m0, s.Key, s.Rng)
	if err != nil {
		return nil, nil, err
	}
	return c0, m1, nil
}

func (RandCryptSplit) Blocksize0(b int) int { return b - 16 }
func (RandCryptSplit) Blocksize1(b int) int { return b }

var _ Splitter = RandCryptSplit{}
