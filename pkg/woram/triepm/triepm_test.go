package triepm

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woram/detworam"
)

// countingKind wraps a woram.Kind so tests can count how many
// nodestore writes (real or dummy) each trie operation performs.
type countingKind struct {
	inner woram.Kind
	ops   *int
}

func (k countingKind) Pmax(blocksize int, n, m uint64) (uint64, error) {
	return k.inner.Pmax(blocksize, n, m)
}

func (k countingKind) PrefSize(blocksize int, n uint64) uint64 {
	return k.inner.PrefSize(blocksize, n)
}

func (k countingKind) New(backend memory.Memory, n uint64) (woram.PlainWoram, error) {
	w, err := k.inner.New(backend, n)
	if err != nil {
		return nil, err
	}
	return &countingWoram{PlainWoram: w, ops: k.ops}, nil
}

type countingWoram struct {
	woram.PlainWoram
	ops *int
}

func (w *countingWoram) Store(index uint64, buf []byte, pm posmap.PositionMap) (uint64, error) {
	*w.ops++
	return w.PlainWoram.Store(index, buf, pm)
}

func (w *countingWoram) DummyWrite(pm posmap.PositionMap) error {
	*w.ops++
	return w.PlainWoram.DummyWrite(pm)
}

func TestTriePMInitialLoadsAreNptr(t *testing.T) {
	tp, err := New(memory.NewLocal(16, 200), detworam.Kind{}, 2, 64, 1000)
	require.NoError(t, err)

	for _, i := range []uint64{0, 1, 31, 63} {
		pos, err := tp.Load(i)
		require.NoError(t, err)
		assert.Equal(t, tp.Nptr(), pos, "index %d", i)
	}
	_, err = tp.Load(64)
	require.Error(t, err)
}

func TestTriePMStoreLoadFuzz(t *testing.T) {
	const n = 64
	tp, err := New(memory.NewLocal(16, 400), detworam.Kind{}, 2, n, 1000)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(11, 11))
	want := make(map[uint64]uint64)
	for op := 0; op < 500; op++ {
		index := rng.Uint64N(n)
		pos := rng.Uint64N(1001)
		require.NoError(t, tp.Store(index, pos))
		want[index] = pos

		// Interleave reads, some hitting the just-written path, some not.
		check := rng.Uint64N(n)
		got, err := tp.Load(check)
		require.NoError(t, err)
		if w, ok := want[check]; ok {
			require.Equal(t, w, got, "index %d at op %d", check, op)
		} else {
			require.Equal(t, tp.Nptr(), got, "index %d at op %d", check, op)
		}
	}
	for index, w := range want {
		got, err := tp.Load(index)
		require.NoError(t, err)
		require.Equal(t, w, got, "index %d at the end", index)
	}
}

func TestTriePMRejectsPositionAbovePmax(t *testing.T) {
	tp, err := New(memory.NewLocal(16, 200), detworam.Kind{}, 2, 64, 1000)
	require.NoError(t, err)
	require.Error(t, tp.Store(0, 1001))
}

func TestTriePMFixedWritesPerStore(t *testing.T) {
	ops := 0
	tp, err := New(memory.NewLocal(16, 400), countingKind{inner: detworam.Kind{}, ops: &ops}, 2, 64, 1000)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(5, 5))
	var perStore int
	for op := 0; op < 50; op++ {
		before := ops
		require.NoError(t, tp.Store(rng.Uint64N(64), rng.Uint64N(1001)))
		cost := ops - before
		if op == 0 {
			perStore = cost
			assert.Positive(t, perStore)
		}
		require.Equal(t, perStore, cost, "store %d cost a different number of nodestore writes", op)
	}
}

func TestTriePMDegenerateRootOnly(t *testing.T) {
	// n <= k: the whole trie is the in-RAM root, no nodestore at all.
	tp, err := New(memory.NewLocal(16, 0), detworam.Kind{}, 4, 3, 99)
	require.NoError(t, err)

	pos, err := tp.Load(1)
	require.NoError(t, err)
	assert.Equal(t, tp.Nptr(), pos)

	require.NoError(t, tp.Store(1, 42))
	pos, err = tp.Load(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), pos)
	require.NoError(t, tp.Flush())
}

func TestTriePMOverOneWriteNodestore(t *testing.T) {
	const n = 16
	ops := 0
	kind := countingKind{inner: woram.OneWriteKind{Mult: 400}, ops: &ops}
	tp, err := New(memory.NewLocal(16, 600), kind, 2, n, 500)
	require.NoError(t, err)

	for i := uint64(0); i < n; i++ {
		require.NoError(t, tp.Store(i, i*7))
	}
	for i := uint64(0); i < n; i++ {
		got, err := tp.Load(i)
		require.NoError(t, err)
		assert.Equal(t, i*7, got, "index %d", i)
	}
}

func TestTriePMAsPositionMapForDetWoram(t *testing.T) {
	const n = 32
	d, err := detworam.New(memory.NewLocal(16, 3*n), n, 2*n)
	require.NoError(t, err)
	tp, err := New(memory.NewLocal(16, 300), detworam.Kind{}, 2, n, d.Pmax())
	require.NoError(t, err)
	m, err := woram.New(d, tp)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(23, 23))
	want := make(map[uint64][]byte)
	for op := 0; op < 200; op++ {
		index := rng.Uint64N(n)
		blk := make([]byte, 16)
		for j := range blk {
			blk[j] = byte(rng.Uint64N(256))
		}
		require.NoError(t, m.Store(index, blk))
		want[index] = blk
	}
	buf := make([]byte, 16)
	for index, w := range want {
		require.NoError(t, m.Load(index, buf))
		require.Equal(t, w, buf, "index %d", index)
	}
}

func TestNumNodes(t *testing.T) {
	assert.Equal(t, uint64(0), NumNodes(1, 2))
	assert.Equal(t, uint64(0), NumNodes(2, 2))
	assert.Equal(t, uint64(6), NumNodes(8, 2))
	assert.Equal(t, uint64(62), NumNodes(64, 2))
	assert.Equal(t, uint64(0), NumNodes(3, 4))
	assert.Equal(t, uint64(4), NumNodes(14, 4))
}
