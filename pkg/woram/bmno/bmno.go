// Package bmno implements the BMNO write-only ORAM scheme: every
// Store pushes its block into a bounded in-RAM stash, then touches K
// random primary slots, either evicting a stash entry into a stale
// slot or re-encrypting a live one under a fresh IV. An observer of
// the backend sees K uniformly random primary writes and K metadata
// writes per logical store, regardless of which index or value was
// stored.
package bmno

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"

	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/crypto"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/pack"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

const ivSize = 16

// DefaultK is the default fan-out for the random-rewrite step.
const DefaultK = 3

// BMNO is a random-rewrite write-only ORAM. size is the logical block
// count; primary backs pmax+stashlen positions; meta backs one
// (ind, iv) record per primary slot, the whole metadata area itself
// encrypted with AES-CBC (random IV) via crypto.RandCrypt.
type BMNO struct {
	size     uint64
	k        int
	stashCap int

	primary memory.Memory // P blocks of ciphertext, IV held in meta
	meta    *pack.PackMem // P records of (ind, iv)

	block cipher.Block // primary-area AES cipher (CBC, external IV)
	rng   io.Reader

	stash []stashEntry
}

// New builds a BMNO over metaBackend (which stores the (ind, iv)
// records, wrapped in AES-CBC via crypto.RandCrypt) and primaryBackend
// (the P ciphertext slots), for size logical blocks with fan-out k.
// rng supplies randomness for IVs and position sampling; pass nil to
// use the package-default CTR-DRBG reader seeded from OS entropy.
func New(metaBackend, primaryBackend memory.Memory, size uint64, k int, key crypto.Key, rng io.Reader) (*BMNO, error) {
	const op = "BMNO.New"
	if k <= 0 {
		return nil, woramerr.InvalidAccessf(op, "k must be positive, got %d", k)
	}
	stashCap := StashCapacity(size)
	p := primaryBackend.Size()
	if p <= uint64(stashCap)+size {
		return nil, woramerr.OutOfRangef(op, "primary area has %d blocks, needs more than size %d + stashlen %d", p, size, stashCap)
	}
	pmax := p - uint64(stashCap)
	if uint64(k) > pmax+1 {
		// K <= pmax+1 is a hard precondition: the distinct-position
		// sampler cannot terminate otherwise.
		return nil, woramerr.InvalidAccessf(op, "k %d exceeds pmax+1 %d", k, pmax+1)
	}

	if rng == nil {
		rng = ctrdrbg.Reader
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.InvalidAccess, op, "constructing primary-area AES cipher", err)
	}

	b := &BMNO{
		size:     size,
		k:        k,
		stashCap: stashCap,
		primary:  primaryBackend,
		block:    block,
		rng:      rng,
	}

	randMeta, err := crypto.NewRandCrypt(metaBackend, key, rng)
	if err != nil {
		return nil, err
	}
	metaPack, err := pack.New(randMeta, b.metaLen(), p)
	if err != nil {
		return nil, err
	}
	b.meta = metaPack

	if err := b.initSlots(); err != nil {
		return nil, err
	}
	return b, nil
}

// initSlots seeds every primary slot with an encrypted zero block and
// a sentinel metadata record, so the first rewrite round over any slot
// finds well-formed ciphertext rather than whatever the backend held.
func (b *BMNO) initSlots() error {
	zero := make([]byte, b.Blocksize())
	for p := uint64(0); p < b.primary.Size(); p++ {
		iv, err := b.randomIV()
		if err != nil {
			return err
		}
		ct := b.encrypt(zero, iv)
		if err := b.primary.Store(p, ct); err != nil {
			return err
		}
		if err := b.storeMeta(p, metaRecord{ind: b.size, iv: iv}); err != nil {
			return err
		}
	}
	return nil
}

func (b *BMNO) Blocksize() int { return b.primary.Blocksize() }
func (b *BMNO) Size() uint64   { return b.size }
func (b *BMNO) Pmax() uint64   { return b.primary.Size() - uint64(b.stashCap) }
func (b *BMNO) Good() bool     { return b.primary.Good() }

// StashDepth reports the current stash occupancy.
func (b *BMNO) StashDepth() int { return len(b.stash) }

func (b *BMNO) randomIV() ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(b.rng, iv); err != nil {
		return nil, woramerr.Wrap(woramerr.IOError, "BMNO.randomIV", "drawing IV from DRBG", err)
	}
	return iv, nil
}

func (b *BMNO) encrypt(plaintext, iv []byte) []byte {
	ct := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(b.block, iv).CryptBlocks(ct, plaintext)
	return ct
}

func (b *BMNO) decrypt(ciphertext, iv []byte) []byte {
	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(b.block, iv).CryptBlocks(pt, ciphertext)
	return pt
}

// randUint64Below draws an unbiased uint64 in [0, n) from b.rng via
// rejection sampling.
func (b *BMNO) randUint64Below(n uint64) (uint64, error) {
	const op = "BMNO.randUint64Below"
	if n == 0 {
		return 0, woramerr.InvalidAccessf(op, "n must be positive")
	}
	limit := ^uint64(0) - (^uint64(0) % n)
	var buf [8]byte
	for {
		if _, err := io.ReadFull(b.rng, buf[:]); err != nil {
			return 0, woramerr.Wrap(woramerr.IOError, op, "drawing randomness from DRBG", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return v % n, nil
		}
	}
}

// samplePositions picks K distinct positions in [0, pmax] uniformly at
// random, rejecting duplicates.
func (b *BMNO) samplePositions() ([]uint64, error) {
	seen := make(map[uint64]bool, b.k)
	out := make([]uint64, 0, b.k)
	for len(out) < b.k {
		p, err := b.randUint64Below(b.Pmax() + 1)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Load returns the block for a logical index, given its recorded
// position. The stash is always checked first: an index may sit there
// for many Store calls before an eviction places it at a primary
// position, so position is only consulted on a stash miss.
func (b *BMNO) Load(index, position uint64, buf []byte) error {
	const op = "BMNO.Load"
	if index >= b.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, b.size)
	}
	if i := b.findStash(index); i >= 0 {
		copy(buf, b.stash[i].block)
		return nil
	}
	if position > b.Pmax() {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	m, err := b.loadMeta(position)
	if err != nil {
		return err
	}
	ct := make([]byte, b.Blocksize())
	if err := b.primary.Load(position, ct); err != nil {
		return err
	}
	copy(buf, b.decrypt(ct, m.iv))
	return nil
}

// rewriteRound touches K random primary slots. A slot whose occupant
// is stale (sentinel index, or the position map no longer points at
// it) absorbs one stash eviction; a live slot is decrypted and
// re-encrypted in place under a fresh IV. Either way each slot costs
// one primary write plus one meta write. The position map gets a
// single Commit nudge at the end if it supports one, driving a
// recursive map's own housekeeping once per round.
func (b *BMNO) rewriteRound(pm posmap.PositionMap) error {
	positions, err := b.samplePositions()
	if err != nil {
		return err
	}
	for _, p := range positions {
		m, err := b.loadMeta(p)
		if err != nil {
			return err
		}
		stale := m.ind >= b.size
		if !stale {
			mapped, err := pm.Load(m.ind)
			if err != nil {
				return err
			}
			stale = mapped != p
		}

		if len(b.stash) > 0 && stale {
			entry, _ := b.popStash()
			iv, err := b.randomIV()
			if err != nil {
				return err
			}
			ct := b.encrypt(entry.block, iv)
			if err := b.primary.Store(p, ct); err != nil {
				return err
			}
			if err := b.storeMeta(p, metaRecord{ind: entry.index, iv: iv}); err != nil {
				return err
			}
			if err := pm.Store(entry.index, p); err != nil {
				return err
			}
			logger.Debug("bmno evict", logger.Index(entry.index), logger.Position(p), logger.Evicted(true))
			continue
		}

		ct := make([]byte, b.Blocksize())
		if err := b.primary.Load(p, ct); err != nil {
			return err
		}
		pt := b.decrypt(ct, m.iv)
		iv, err := b.randomIV()
		if err != nil {
			return err
		}
		newCt := b.encrypt(pt, iv)
		if err := b.primary.Store(p, newCt); err != nil {
			return err
		}
		if err := b.storeMeta(p, metaRecord{ind: m.ind, iv: iv}); err != nil {
			return err
		}
	}
	if committer, ok := pm.(posmap.Committer); ok {
		if err := committer.Commit(); err != nil {
			return err
		}
	}
	logger.Debug("bmno rewrite round", logger.StashDepth(len(b.stash)), logger.StashCap(b.stashCap), logger.Fanout(b.k))
	return nil
}

// Store places buf in the stash (overwriting any pending entry for the
// same index) and runs one rewrite round. The returned position is
// whatever the position map holds for the index afterwards: the fresh
// slot if this round happened to evict it, the unchanged old value if
// not, or Nptr if the block has never left the stash; in the Nptr
// case the caller has nothing to record.
func (b *BMNO) Store(index uint64, buf []byte, pm posmap.PositionMap) (uint64, error) {
	const op = "BMNO.Store"
	if index >= b.size {
		return 0, woramerr.OutOfRangef(op, "index %d >= size %d", index, b.size)
	}
	if err := woramerr.CheckLength(op, len(buf), b.Blocksize()); err != nil {
		return 0, err
	}

	if i := b.findStash(index); i >= 0 {
		copy(b.stash[i].block, buf)
	} else {
		if len(b.stash) >= b.stashCap {
			return 0, woramerr.LengthErrorf(op, "stash overflow: %d entries at capacity %d", len(b.stash), b.stashCap)
		}
		blk := make([]byte, len(buf))
		copy(blk, buf)
		b.stash = append(b.stash, stashEntry{index: index, block: blk})
	}

	if err := b.rewriteRound(pm); err != nil {
		return 0, err
	}

	pos, err := pm.Load(index)
	if err != nil {
		return 0, err
	}
	if pos == pm.Nptr() || pos > b.Pmax() {
		return posmap.Nptr(b.Pmax()), nil
	}
	return pos, nil
}

// DummyWrite performs the same K-rewrite housekeeping as Store without
// placing a new logical block, keeping the per-call write count on the
// backend fixed even when no real Store happens at this level.
func (b *BMNO) DummyWrite(pm posmap.PositionMap) error {
	return b.rewriteRound(pm)
}

// Flush dumps the stash into the high end of the primary area
// (positions [P-stashlen, P-1]) and flushes the backends. The position
// map is not updated to point into that region, so Flush is a
// graceful-shutdown operation: it must be the last call made against
// this BMNO.
func (b *BMNO) Flush() error {
	p := b.primary.Size()
	for i, e := range b.stash {
		pos := p - 1 - uint64(i)
		if err := b.primary.Store(pos, e.block); err != nil {
			return err
		}
	}
	b.stash = nil
	if err := b.primary.Flush(); err != nil {
		return err
	}
	return b.meta.Flush()
}

var _ woram.PlainWoram = (*BMNO)(nil)
