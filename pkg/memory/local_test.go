package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMemLoadStore(t *testing.T) {
	m := NewLocal(16, 4)
	require.Equal(t, 16, m.Blocksize())
	require.Equal(t, uint64(4), m.Size())
	require.True(t, m.Good())

	buf := make([]byte, 16)
	require.NoError(t, m.Load(0, buf))
	assert.Equal(t, make([]byte, 16), buf)

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, m.Store(2, data))

	got := make([]byte, 16)
	require.NoError(t, m.Load(2, got))
	assert.Equal(t, data, got)

	require.NoError(t, m.Load(0, got))
	assert.Equal(t, make([]byte, 16), got, "unrelated blocks must not be touched")
}

func TestLocalMemOutOfRange(t *testing.T) {
	m := NewLocal(8, 2)
	buf := make([]byte, 8)
	require.Error(t, m.Load(2, buf))
	require.Error(t, m.Store(99, buf))
}

func TestLocalMemLengthMismatch(t *testing.T) {
	m := NewLocal(8, 2)
	require.Error(t, m.Load(0, make([]byte, 7)))
	require.Error(t, m.Store(0, make([]byte, 9)))
}

func TestLocalMemStoreCopies(t *testing.T) {
	m := NewLocal(4, 1)
	data := []byte{1, 2, 3, 4}
	require.NoError(t, m.Store(0, data))
	data[0] = 0xff

	got := make([]byte, 4)
	require.NoError(t, m.Load(0, got))
	assert.Equal(t, byte(1), got[0], "LocalMem must copy on store, not alias the caller's buffer")
}
