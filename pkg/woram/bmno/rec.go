package bmno

import (
	"io"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"

	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/pack"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

// BMNORec is the recursive variant of BMNO, meant to hold a parent
// WORAM's position map. It differs from BMNO in two ways: it carries
// no encryption of its own (wrap its backend in a crypto Memory when
// confidentiality is wanted at this level), and its Store only places
// the block in the stash: the K-rewrite step runs on DummyWrite
// (which a wrapping PMWoram's Commit calls), driven by the parent's
// housekeeping rhythm. One parent round therefore costs exactly one
// K-rewrite here no matter how many pointer updates it buffered.
type BMNORec struct {
	size     uint64
	k        int
	stashCap int

	primary memory.Memory // P blocks, plaintext
	meta    *pack.PackMem // P occupant-index records

	rng io.Reader

	stash []stashEntry
}

// NewRec builds a BMNORec over metaBackend and primaryBackend for
// size logical blocks with fan-out k. rng supplies randomness for the
// position sampling; pass nil to use the package-default CTR-DRBG
// reader seeded from OS entropy.
func NewRec(metaBackend, primaryBackend memory.Memory, size uint64, k int, rng io.Reader) (*BMNORec, error) {
	const op = "BMNORec.New"
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
		return nil, woramerr.InvalidAccessf(op, "k %d exceeds pmax+1 %d", k, pmax+1)
	}
	if rng == nil {
		rng = ctrdrbg.Reader
	}

	r := &BMNORec{size: size, k: k, stashCap: stashCap, primary: primaryBackend, rng: rng}

	metaPack, err := pack.New(metaBackend, r.indWidth(), p)
	if err != nil {
		return nil, err
	}
	r.meta = metaPack

	zero := make([]byte, r.Blocksize())
	for pos := uint64(0); pos < p; pos++ {
		if err := r.storeInd(pos, size); err != nil {
			return nil, err
		}
		if err := r.primary.Store(pos, zero); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *BMNORec) indWidth() int {
	w := posmap.BytesFor(r.size)
	if w == 0 {
		w = 1
	}
	return w
}

func (r *BMNORec) loadInd(pos uint64) (uint64, error) {
	buf := make([]byte, r.indWidth())
	if err := r.meta.Load(pos, buf); err != nil {
		return 0, err
	}
	var n uint64
	for i := len(buf) - 1; i >= 0; i-- {
		n = (n << 8) | uint64(buf[i])
	}
	return n, nil
}

func (r *BMNORec) storeInd(pos, ind uint64) error {
	buf := make([]byte, r.indWidth())
	n := ind
	for i := range buf {
		buf[i] = byte(n)
		n >>= 8
	}
	return r.meta.Store(pos, buf)
}

func (r *BMNORec) Blocksize() int { return r.primary.Blocksize() }
func (r *BMNORec) Size() uint64   { return r.size }
func (r *BMNORec) Pmax() uint64   { return r.primary.Size() - uint64(r.stashCap) }
func (r *BMNORec) Good() bool     { return r.primary.Good() }

// StashDepth reports the current stash occupancy.
func (r *BMNORec) StashDepth() int { return len(r.stash) }

func (r *BMNORec) randUint64Below(n uint64) (uint64, error) {
	const op = "BMNORec.randUint64Below"
	if n == 0 {
		return 0, woramerr.InvalidAccessf(op, "n must be positive")
	}
	limit := ^uint64(0) - (^uint64(0) % n)
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r.rng, buf[:]); err != nil {
			return 0, woramerr.Wrap(woramerr.IOError, op, "drawing randomness from DRBG", err)
		}
		v := uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
			uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])
		if v < limit {
			return v % n, nil
		}
	}
}

func (r *BMNORec) samplePositions() ([]uint64, error) {
	seen := make(map[uint64]bool, r.k)
	out := make([]uint64, 0, r.k)
	for len(out) < r.k {
		p, err := r.randUint64Below(r.Pmax() + 1)
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

func (r *BMNORec) findStash(index uint64) int {
	for i := range r.stash {
		if r.stash[i].index == index {
			return i
		}
	}
	return -1
}

func (r *BMNORec) Load(index, position uint64, buf []byte) error {
	const op = "BMNORec.Load"
	if index >= r.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, r.size)
	}
	if i := r.findStash(index); i >= 0 {
		copy(buf, r.stash[i].block)
		return nil
	}
	if position > r.Pmax() {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	return r.primary.Load(position, buf)
}

// rewriteRound is the commit step: K random slots, each either
// absorbing a stash eviction into a stale slot or rewriting a live
// slot's bytes unchanged. The unchanged rewrite is still a physical
// backend write, so the trace stays uniform across rounds.
func (r *BMNORec) rewriteRound(pm posmap.PositionMap) error {
	positions, err := r.samplePositions()
	if err != nil {
		return err
	}
	for _, p := range positions {
		ind, err := r.loadInd(p)
		if err != nil {
			return err
		}
		stale := ind >= r.size
		if !stale {
			mapped, err := pm.Load(ind)
			if err != nil {
				return err
			}
			stale = mapped != p
		}

		if len(r.stash) > 0 && stale {
			n := len(r.stash)
			entry := r.stash[n-1]
			r.stash = r.stash[:n-1]
			if err := r.primary.Store(p, entry.block); err != nil {
				return err
			}
			if err := r.storeInd(p, entry.index); err != nil {
				return err
			}
			if err := pm.Store(entry.index, p); err != nil {
				return err
			}
			continue
		}

		buf := make([]byte, r.Blocksize())
		if err := r.primary.Load(p, buf); err != nil {
			return err
		}
		if err := r.primary.Store(p, buf); err != nil {
			return err
		}
		if err := r.storeInd(p, ind); err != nil {
			return err
		}
	}
	if committer, ok := pm.(posmap.Committer); ok {
		if err := committer.Commit(); err != nil {
			return err
		}
	}
	logger.Debug("bmnorec rewrite round", logger.StashDepth(len(r.stash)), logger.StashCap(r.stashCap), logger.Fanout(r.k))
	return nil
}

// Store only places buf in the stash and reports that no placement
// happened yet (the caller records nothing); the block reaches the
// primary area during a later Commit's eviction, which updates pm
// directly.
func (r *BMNORec) Store(index uint64, buf []byte, _ posmap.PositionMap) (uint64, error) {
	const op = "BMNORec.Store"
	if index >= r.size {
		return 0, woramerr.OutOfRangef(op, "index %d >= size %d", index, r.size)
	}
	if err := woramerr.CheckLength(op, len(buf), r.Blocksize()); err != nil {
		return 0, err
	}
	if i := r.findStash(index); i >= 0 {
		copy(r.stash[i].block, buf)
	} else {
		if len(r.stash) >= r.stashCap {
			return 0, woramerr.LengthErrorf(op, "stash overflow: %d entries at capacity %d", len(r.stash), r.stashCap)
		}
		blk := make([]byte, len(buf))
		copy(blk, buf)
		r.stash = append(r.stash, stashEntry{index: index, block: blk})
	}
	return posmap.Nptr(r.Pmax()), nil
}

// DummyWrite runs one commit round: the K-rewrite step with no
// corresponding data write.
func (r *BMNORec) DummyWrite(pm posmap.PositionMap) error {
	return r.rewriteRound(pm)
}

func (r *BMNORec) Flush() error {
	p := r.primary.Size()
	for i, e := range r.stash {
		pos := p - 1 - uint64(i)
		if err := r.primary.Store(pos, e.block); err != nil {
			return err
		}
	}
	r.stash = nil
	if err := r.primary.Flush(); err != nil {
		return err
	}
	return r.meta.Flush()
}

var _ woram.PlainWoram = (*BMNORec)(nil)
