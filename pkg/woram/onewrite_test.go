package woram

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/posmap"
	"github.com/marmos91/woram/pkg/woramerr"
)

func TestOneWriteWoramAppendsAndLoads(t *testing.T) {
	o, err := NewOneWrite(memory.NewLocal(16, 100), 10)
	require.NoError(t, err)
	pm := posmap.NewLocal(10, o.Pmax())

	for i := uint64(0); i < 10; i++ {
		blk := bytes.Repeat([]byte{byte(i + 1)}, 16)
		pos, err := o.Store(i, blk, pm)
		require.NoError(t, err)
		assert.Equal(t, i, pos, "positions follow insertion order")
		require.NoError(t, pm.Store(i, pos))
	}
	assert.Equal(t, uint64(10), o.NextPos())

	buf := make([]byte, 16)
	for i := uint64(0); i < 10; i++ {
		pos, err := pm.Load(i)
		require.NoError(t, err)
		require.NoError(t, o.Load(i, pos, buf))
		assert.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, 16), buf)
	}
}

func TestOneWriteWoramLoadNptrZeroes(t *testing.T) {
	o, err := NewOneWrite(memory.NewLocal(16, 10), 5)
	require.NoError(t, err)

	buf := bytes.Repeat([]byte{0xFF}, 16)
	require.NoError(t, o.Load(3, posmap.Nptr(o.Pmax()), buf))
	assert.Equal(t, make([]byte, 16), buf)
}

func TestOneWriteWoramExhaustion(t *testing.T) {
	o, err := NewOneWrite(memory.NewLocal(16, 3), 3)
	require.NoError(t, err)
	pm := posmap.NewLocal(3, o.Pmax())

	blk := make([]byte, 16)
	for i := 0; i < 3; i++ {
		_, err := o.Store(uint64(i), blk, pm)
		require.NoError(t, err)
	}
	_, err = o.Store(0, blk, pm)
	require.Error(t, err)
	var werr *woramerr.WError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, woramerr.LengthError, werr.Kind)

	require.Error(t, o.DummyWrite(pm))
}

func TestOneWriteWoramDummyWriteAdvancesCursor(t *testing.T) {
	o, err := NewOneWrite(memory.NewLocal(16, 10), 5)
	require.NoError(t, err)
	pm := posmap.NewLocal(5, o.Pmax())

	require.NoError(t, o.DummyWrite(pm))
	blk := bytes.Repeat([]byte{0x77}, 16)
	pos, err := o.Store(0, blk, pm)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pos, "dummy write consumes slot 0")
}
