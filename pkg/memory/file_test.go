package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMemCreateLoadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.bin")

	m, err := CreateFile(path, 32, 8)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, 32, m.Blocksize())
	require.Equal(t, uint64(8), m.Size())
	require.True(t, m.Good())

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, m.Store(3, data))
	require.NoError(t, m.Flush())

	got := make([]byte, 32)
	require.NoError(t, m.Load(3, got))
	assert.Equal(t, data, got)
}

func TestFileMemOpenTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.bin")
	m, err := CreateFile(path, 16, 2)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = OpenFile(path, 16, 4)
	require.Error(t, err)
}

func TestFileMemOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.bin")
	m, err := CreateFile(path, 16, 2)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 16)
	require.Error(t, m.Load(2, buf))
	require.Error(t, m.Store(5, buf))
}

func TestFileMemPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.bin")

	m, err := CreateFile(path, 16, 2)
	require.NoError(t, err)
	data := []byte("0123456789abcdef")
	require.NoError(t, m.Store(1, data))
	require.NoError(t, m.Close())

	reopened, err := OpenFile(path, 16, 2)
	require.NoError(t, err)
	defer reopened.Close()

	got := make([]byte, 16)
	require.NoError(t, reopened.Load(1, got))
	assert.Equal(t, data, got)
}
