package triepm

import (
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woramerr"
)

// nodePM lets the trie serve as the position map for its own
// nodestore: the position of internal node i is, by construction, the
// child pointer recorded in i's parent, so looking it up is just a
// path walk. The nodestore's housekeeping (DetWoram's long-term
// catch-up) needs exactly this lookup to find the authoritative copy
// of each node it rewrites.
type nodePM struct {
	t *TriePM
}

func (t *TriePM) nodePosMap() posmap.PositionMap { return nodePM{t: t} }

func (p nodePM) Size() uint64 { return p.t.numnodes }
func (p nodePM) Pmax() uint64 { return p.t.nodestore.Pmax() }
func (p nodePM) Nptr() uint64 { return p.t.sentinel }
func (p nodePM) Flush() error { return nil }

func (p nodePM) Load(index uint64) (uint64, error) {
	if index >= p.t.numnodes {
		return 0, woramerr.OutOfRangef("triePM.nodePM.Load", "node %d >= numnodes %d", index, p.t.numnodes)
	}
	return p.t.fetchRead(index + 1)
}

// Store is never called: node positions are recorded by the trie's
// own write-back pass, not by the nodestore.
func (p nodePM) Store(index, pos uint64) error {
	return woramerr.InvalidAccessf("triePM.nodePM.Store", "node positions are maintained by the trie write-back, not the nodestore (node %d, pos %d)", index, pos)
}

var _ posmap.PositionMap = nodePM{}
