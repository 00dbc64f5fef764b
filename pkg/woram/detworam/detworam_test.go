package detworam

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woram"
)

// traceMem records the index of every Store that reaches the backend.
type traceMem struct {
	memory.Memory
	writes []uint64
}

func (m *traceMem) Store(index uint64, buf []byte) error {
	m.writes = append(m.writes, index)
	return m.Memory.Store(index, buf)
}

func newDet(t *testing.T, n, h uint64) (*DetWoram, *posmap.LocalPosMap) {
	t.Helper()
	d, err := New(memory.NewLocal(16, n+h), n, h)
	require.NoError(t, err)
	return d, posmap.NewLocal(n, d.Pmax())
}

func storeAndRecord(t *testing.T, d *DetWoram, pm *posmap.LocalPosMap, index uint64, buf []byte) {
	t.Helper()
	pos, err := d.Store(index, buf, pm)
	require.NoError(t, err)
	require.NoError(t, pm.Store(index, pos))
}

func TestDetWoramRoundTrip(t *testing.T) {
	d, pm := newDet(t, 8, 16)

	for i := uint64(0); i < 8; i++ {
		storeAndRecord(t, d, pm, i, bytes.Repeat([]byte{byte(i + 1)}, 16))
	}
	storeAndRecord(t, d, pm, 3, bytes.Repeat([]byte{0xAA}, 16))

	buf := make([]byte, 16)
	for i := uint64(0); i < 8; i++ {
		pos, err := pm.Load(i)
		require.NoError(t, err)
		require.NoError(t, d.Load(i, pos, buf))
		want := byte(i + 1)
		if i == 3 {
			want = 0xAA
		}
		assert.Equal(t, bytes.Repeat([]byte{want}, 16), buf, "index %d", i)
	}
}

func TestDetWoramUnwrittenReadsLongTerm(t *testing.T) {
	d, pm := newDet(t, 4, 8)
	buf := bytes.Repeat([]byte{0xFF}, 16)
	pos, err := pm.Load(2)
	require.NoError(t, err)
	require.NoError(t, d.Load(2, pos, buf))
	assert.Equal(t, make([]byte, 16), buf)
}

func TestDetWoramWriteCountsAreDeterministic(t *testing.T) {
	// The long-term catch-up follows the holding cursor: with N=8 and
	// H=16, eight stores perform exactly four long-term rewrites and
	// eight holding writes, regardless of the workload.
	trace := &traceMem{Memory: memory.NewLocal(16, 24)}
	d, err := New(trace, 8, 16)
	require.NoError(t, err)
	pm := posmap.NewLocal(8, d.Pmax())

	for i := uint64(0); i < 8; i++ {
		storeAndRecord(t, d, pm, i%3, bytes.Repeat([]byte{byte(i)}, 16))
	}

	longterm, holding := 0, 0
	for _, w := range trace.writes {
		if w < 8 {
			longterm++
		} else {
			holding++
		}
	}
	assert.Equal(t, 4, longterm)
	assert.Equal(t, 8, holding)
}

func TestDetWoramTraceIndependentOfWorkload(t *testing.T) {
	run := func(indices []uint64, fill byte) []uint64 {
		trace := &traceMem{Memory: memory.NewLocal(16, 24)}
		d, err := New(trace, 8, 16)
		require.NoError(t, err)
		pm := posmap.NewLocal(8, d.Pmax())
		for _, i := range indices {
			storeAndRecord(t, d, pm, i, bytes.Repeat([]byte{fill}, 16))
		}
		return trace.writes
	}

	a := run([]uint64{0, 1, 2, 3, 4, 5, 6, 7}, 0x01)
	b := run([]uint64{7, 7, 7, 7, 0, 0, 0, 0}, 0xFE)
	assert.Equal(t, a, b, "backend write trace must not depend on the logical workload")
}

func TestDetWoramDummyWriteMatchesStoreTrace(t *testing.T) {
	real := &traceMem{Memory: memory.NewLocal(16, 24)}
	d1, err := New(real, 8, 16)
	require.NoError(t, err)
	pm1 := posmap.NewLocal(8, d1.Pmax())
	for i := 0; i < 5; i++ {
		storeAndRecord(t, d1, pm1, 2, bytes.Repeat([]byte{0x55}, 16))
	}

	dummy := &traceMem{Memory: memory.NewLocal(16, 24)}
	d2, err := New(dummy, 8, 16)
	require.NoError(t, err)
	pm2 := posmap.NewLocal(8, d2.Pmax())
	for i := 0; i < 5; i++ {
		require.NoError(t, d2.DummyWrite(pm2))
	}

	assert.Equal(t, real.writes, dummy.writes)
}

func TestDetWoramHoldingWrapsAndStaysCorrect(t *testing.T) {
	d, pm := newDet(t, 4, 4)
	// More stores than H, so the holding cursor laps several times.
	for round := 0; round < 6; round++ {
		for i := uint64(0); i < 4; i++ {
			storeAndRecord(t, d, pm, i, bytes.Repeat([]byte{byte(round<<4 | int(i))}, 16))
		}
	}
	buf := make([]byte, 16)
	for i := uint64(0); i < 4; i++ {
		pos, err := pm.Load(i)
		require.NoError(t, err)
		require.NoError(t, d.Load(i, pos, buf))
		assert.Equal(t, bytes.Repeat([]byte{byte(5<<4 | int(i))}, 16), buf, "index %d", i)
	}
}

func TestDetWoramViaPMWoram(t *testing.T) {
	d, err := New(memory.NewLocal(16, 24), 8, 16)
	require.NoError(t, err)
	m, err := woram.New(d, posmap.NewLocal(8, d.Pmax()))
	require.NoError(t, err)

	for i := uint64(0); i < 8; i++ {
		require.NoError(t, m.Store(i, bytes.Repeat([]byte{byte(0x30 + i)}, 16)))
	}
	buf := make([]byte, 16)
	for i := uint64(0); i < 8; i++ {
		require.NoError(t, m.Load(i, buf))
		assert.Equal(t, bytes.Repeat([]byte{byte(0x30 + i)}, 16), buf)
	}
}

func TestDetWoramKindGeometry(t *testing.T) {
	k := Kind{}
	pmax, err := k.Pmax(16, 8, 24)
	require.NoError(t, err)
	assert.Equal(t, uint64(16*16*8*2-1), pmax)

	_, err = k.Pmax(16, 8, 8)
	require.Error(t, err)

	assert.Equal(t, uint64(16), k.PrefSize(16, 8))

	w, err := k.New(memory.NewLocal(16, 24), 8)
	require.NoError(t, err)
	assert.Equal(t, pmax, w.Pmax())
}
