// Package triepm implements TriePM, a position map represented as a
// balanced K-ary pointer trie whose internal nodes live in a plain
// WORAM (a DetWoram or OneWriteWoram, injected via woram.Kind) and
// whose root stays in RAM. A logical index resolves to a position by
// a root-to-leaf walk; every Store rewrites one node per trie level
// (dummy-writing any level whose node did not change), so the
// nodestore sees a fixed number of writes per Store no matter which
// entry changed. Two in-RAM path caches (a write cache holding the
// most recently modified root-to-leaf path, and a read cache holding
// the most recently read one) turn repeated walks with shared
// prefixes into at most one nodestore read per level.
package triepm

import (
	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/pack"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woramerr"
)

// nullind marks an unoccupied cache slot. No stored node has virtual
// index 0 (that is the in-RAM root), so 0 is free as the sentinel.
const nullind = 0

// trieNode is one cached node: its virtual trie index plus its K
// child pointers.
type trieNode struct {
	index    uint64
	children []uint64
}

// TriePM maps indices in [0, size) to positions in [0, pmax] or
// Nptr(). Internal nodes are numbered heap-style: the root is 0,
// children of node i are k*i+w+1, and the stored nodes are virtual
// indices 1..numnodes (the root is held in RAM). The value for
// logical index i lives in a child slot of the node numbered
// parentof(numnodes + i + 1).
type TriePM struct {
	k        uint64
	size     uint64
	pmax     uint64
	numnodes uint64
	height   int // root has height 0; cache arrays hold height+1 nodes

	ptrWidth int
	sentinel uint64 // all-ones of ptrWidth: "no child / no position"

	nodestore woram.PlainWoram

	writecache []trieNode
	readcache  []trieNode
	rcsplit    int // first cache depth where readcache diverges from writecache

	root []uint64 // degenerate case (numnodes == 0): the K leaf slots directly
}

// NumNodes returns the internal-node count of a trie over n entries
// with branching factor k, excluding the in-RAM root.
func NumNodes(n uint64, k int) uint64 {
	if n < 2 {
		n = 2
	}
	return (n - 2) / uint64(k-1)
}

// trieHeight returns the longest root-to-node path length for a trie
// of numnodes stored nodes with branching factor k.
func trieHeight(numnodes, k uint64) int {
	ht := 0
	sofar := uint64(0)
	lastrow := uint64(1)
	for sofar < numnodes {
		sofar += lastrow * k
		lastrow *= k
		ht++
	}
	return ht
}

func allOnes(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * width)) - 1
}

// ptrWidthFor sizes the node pointer width: wide enough for any leaf
// position up to pmax and any internal position the nodestore can
// return, with the all-ones value left over as the sentinel. The
// internal pmax depends on the node size, which depends on the width,
// so iterate until stable.
func ptrWidthFor(backend memory.Memory, kind woram.Kind, k int, numnodes, pmax uint64) (int, error) {
	width := posmap.BytesFor(pmax)
	if width == 0 {
		width = 1
	}
	for {
		nodeLen := k * width
		perBlock := uint64(backend.Blocksize() / nodeLen)
		if perBlock == 0 {
			return 0, woramerr.OutOfRangef("TriePM.New", "blocksize %d too small for a %d-byte trie node", backend.Blocksize(), nodeLen)
		}
		maxintern, err := kind.Pmax(nodeLen, numnodes, backend.Size()*perBlock)
		if err != nil {
			return 0, err
		}
		need := posmap.BytesFor(maxintern + 1)
		if need < posmap.BytesFor(pmax) {
			need = posmap.BytesFor(pmax)
		}
		if need <= width && maxintern < allOnes(width) && pmax < allOnes(width) {
			return width, nil
		}
		if need > width {
			width = need
		} else {
			width++
		}
	}
}

// New builds a TriePM of branching factor k over backend, resolving
// indices in [0, n) to positions in [0, pmax]. The internal nodes are
// packed into backend blocks and stored in a WORAM built by kind.
func New(backend memory.Memory, kind woram.Kind, k int, n, pmax uint64) (*TriePM, error) {
	const op = "TriePM.New"
	if k < 2 {
		return nil, woramerr.InvalidAccessf(op, "branching factor k must be >= 2, got %d", k)
	}
	if n == 0 {
		return nil, woramerr.OutOfRangef(op, "size must be > 0")
	}
	numnodes := NumNodes(n, k)

	t := &TriePM{
		k:        uint64(k),
		size:     n,
		pmax:     pmax,
		numnodes: numnodes,
	}

	if numnodes == 0 {
		// The whole trie is the root: n <= k leaf slots held in RAM.
		t.ptrWidth = posmap.BytesFor(posmap.Nptr(pmax))
		t.sentinel = posmap.Nptr(pmax)
		t.root = make([]uint64, k)
		for i := range t.root {
			t.root[i] = t.sentinel
		}
		return t, nil
	}

	width, err := ptrWidthFor(backend, kind, k, numnodes, pmax)
	if err != nil {
		return nil, err
	}
	t.ptrWidth = width
	t.sentinel = allOnes(width)
	t.height = trieHeight(numnodes, uint64(k))

	nodeLen := k * width
	perBlock := uint64(backend.Blocksize() / nodeLen)
	packed, err := pack.New(backend, nodeLen, backend.Size()*perBlock)
	if err != nil {
		return nil, err
	}
	nodestore, err := kind.New(packed, numnodes)
	if err != nil {
		return nil, err
	}
	if nodestore.Pmax() >= t.sentinel {
		return nil, woramerr.OutOfRangef(op, "nodestore pmax %d collides with sentinel %d", nodestore.Pmax(), t.sentinel)
	}
	t.nodestore = nodestore

	t.writecache = make([]trieNode, t.height+1)
	t.readcache = make([]trieNode, t.height+1)
	for i := range t.writecache {
		t.writecache[i] = trieNode{index: nullind, children: make([]uint64, k)}
		t.readcache[i] = trieNode{index: nullind, children: make([]uint64, k)}
	}
	for i := range t.writecache[0].children {
		t.writecache[0].children[i] = t.sentinel
	}
	t.rcsplit = 1
	logger.Debug("triepm created", logger.Branching(k), logger.TrieDepth(t.height))
	return t, nil
}

func (t *TriePM) Size() uint64 { return t.size }
func (t *TriePM) Pmax() uint64 { return t.pmax }
func (t *TriePM) Nptr() uint64 { return t.sentinel }

func (t *TriePM) Flush() error {
	if t.nodestore == nil {
		return nil
	}
	return t.nodestore.Flush()
}

// Good reports whether the underlying nodestore is still usable.
func (t *TriePM) Good() bool {
	if t.nodestore == nil {
		return true
	}
	return t.nodestore.Good()
}

func (t *TriePM) parentof(v uint64) uint64   { return (v - 1) / t.k }
func (t *TriePM) whichChild(v uint64) uint64 { return (v - 1) % t.k }

// nodeind converts a virtual trie index to a nodestore logical index.
func (t *TriePM) nodeind(v uint64) uint64 { return v - 1 }

// leafVirt converts a logical map index to its virtual trie index.
func (t *TriePM) leafVirt(index uint64) uint64 { return t.numnodes + index + 1 }

// pathto fills path (length height+1) with the virtual indices of the
// nodes from the root down to v's parent, right-aligned, and returns
// the offset of the root entry.
func (t *TriePM) pathto(v uint64, path []uint64) int {
	pbegin := len(path) - 1
	path[pbegin] = t.parentof(v)
	for path[pbegin] >= 1 {
		path[pbegin-1] = t.parentof(path[pbegin])
		pbegin--
	}
	return pbegin
}

// matchlen returns the first cache depth at or after sofar whose
// cached node is not the one the path wants.
func matchlen(path []uint64, pbegin, sofar int, cache []trieNode) int {
	for pbegin+sofar < len(path) && cache[sofar].index == path[pbegin+sofar] {
		sofar++
	}
	return sofar
}

func (t *TriePM) encodeNode(children []uint64) []byte {
	buf := make([]byte, int(t.k)*t.ptrWidth)
	for i, v := range children {
		b := buf[i*t.ptrWidth : (i+1)*t.ptrWidth]
		for j := range b {
			b[j] = byte(v)
			v >>= 8
		}
	}
	return buf
}

func (t *TriePM) decodeNode(buf []byte, children []uint64) {
	for i := range children {
		b := buf[i*t.ptrWidth : (i+1)*t.ptrWidth]
		var v uint64
		for j := len(b) - 1; j >= 0; j-- {
			v = (v << 8) | uint64(b[j])
		}
		children[i] = v
	}
}

// fetchInto loads the node with virtual index find, stored at pos,
// into slot. pos == sentinel means the node has never been written;
// the slot is filled with sentinel child pointers instead.
func (t *TriePM) fetchInto(find, pos uint64, slot *trieNode) error {
	if pos == t.sentinel {
		for i := range slot.children {
			slot.children[i] = t.sentinel
		}
	} else {
		buf := make([]byte, int(t.k)*t.ptrWidth)
		if err := t.nodestore.Load(t.nodeind(find), pos, buf); err != nil {
			return err
		}
		t.decodeNode(buf, slot.children)
	}
	slot.index = find
	return nil
}

// fetchWrite pulls the path to virtual index v into the write cache
// and returns the cache depth of v's parent node.
func (t *TriePM) fetchWrite(v uint64) (int, error) {
	path := make([]uint64, t.height+1)
	pbegin := t.pathto(v, path)
	fetched := matchlen(path, pbegin, 1, t.writecache)

	if pbegin+fetched < len(path) {
		for pbegin+fetched < len(path) {
			find := path[pbegin+fetched]
			pos := t.writecache[fetched-1].children[t.whichChild(find)]
			if err := t.fetchInto(find, pos, &t.writecache[fetched]); err != nil {
				return 0, err
			}
			fetched++
		}
		if fetched < len(t.writecache) {
			t.writecache[fetched].index = nullind
		}
	}
	return fetched - 1, nil
}

// fetchRead resolves the child slot for virtual index v, preferring
// the write cache, then the read cache, then nodestore loads that
// refill the read cache along the walk. Returns the slot value, which
// is the sentinel when any link on the way down is missing.
func (t *TriePM) fetchRead(v uint64) (uint64, error) {
	path := make([]uint64, t.height+1)
	pbegin := t.pathto(v, path)
	fetched := matchlen(path, pbegin, 1, t.writecache)

	if pbegin+fetched == len(path) {
		return t.writecache[fetched-1].children[t.whichChild(v)], nil
	}

	if t.rcsplit == fetched {
		fetched = matchlen(path, pbegin, t.rcsplit, t.readcache)
	} else {
		t.rcsplit = fetched
	}

	var find, pos uint64
	if fetched > t.rcsplit {
		if pbegin+fetched == len(path) {
			return t.readcache[fetched-1].children[t.whichChild(v)], nil
		}
		find = path[pbegin+fetched]
		pos = t.readcache[fetched-1].children[t.whichChild(find)]
	} else {
		find = path[pbegin+fetched]
		pos = t.writecache[fetched-1].children[t.whichChild(find)]
	}

	for pos != t.sentinel {
		if err := t.fetchInto(find, pos, &t.readcache[fetched]); err != nil {
			return 0, err
		}
		fetched++
		if pbegin+fetched == len(path) {
			if fetched < len(t.readcache) {
				t.readcache[fetched].index = nullind
			}
			return t.readcache[fetched-1].children[t.whichChild(v)], nil
		}
		find = path[pbegin+fetched]
		pos = t.readcache[fetched-1].children[t.whichChild(find)]
	}

	if fetched < len(t.readcache) {
		t.readcache[fetched].index = nullind
	}
	return pos, nil
}

func (t *TriePM) Load(index uint64) (uint64, error) {
	const op = "TriePM.Load"
	if index >= t.size {
		return 0, woramerr.OutOfRangef(op, "index %d >= size %d", index, t.size)
	}
	if t.numnodes == 0 {
		return t.root[index], nil
	}
	return t.fetchRead(t.leafVirt(index))
}

func (t *TriePM) Store(index, pos uint64) error {
	const op = "TriePM.Store"
	if index >= t.size {
		return woramerr.OutOfRangef(op, "index %d >= size %d", index, t.size)
	}
	if pos > t.pmax {
		return woramerr.OutOfRangef(op, "position %d > pmax %d", pos, t.pmax)
	}
	if t.numnodes == 0 {
		t.root[index] = pos
		return nil
	}

	v := t.leafVirt(index)
	ht, err := t.fetchWrite(v)
	if err != nil {
		return err
	}
	t.writecache[ht].children[t.whichChild(v)] = pos

	// Write back bottom-up: one nodestore write per level, real for
	// levels on the fetched path, dummy for the rest, so every Store
	// costs the same number of nodestore writes.
	for i := len(t.writecache) - 1; i >= 1; i-- {
		curind := t.writecache[i].index
		if curind == nullind {
			if err := t.nodestore.DummyWrite(t.nodePosMap()); err != nil {
				return err
			}
			continue
		}
		newPos, err := t.nodestore.Store(t.nodeind(curind), t.encodeNode(t.writecache[i].children), t.nodePosMap())
		if err != nil {
			return err
		}
		t.writecache[i-1].children[t.whichChild(curind)] = newPos
	}

	t.rcsplit = 1
	t.readcache[1].index = nullind
	logger.Debug("triepm store", logger.Index(index), logger.Position(pos), logger.TrieDepth(t.height))
	return nil
}

var _ posmap.PositionMap = (*TriePM)(nil)
