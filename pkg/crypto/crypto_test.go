package crypto

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/woram/pkg/memory"
)

var testKey = Key{
	0x3D, 0x37, 0x8F, 0x12, 0xA0, 0x5B, 0xC4, 0x7E,
	0x91, 0x02, 0xD3, 0x44, 0x65, 0xF6, 0x87, 0x18,
}

func TestKeyValidate(t *testing.T) {
	backend := memory.NewLocal(16, 4)
	_, err := NewCtrCrypt(backend, Key{1, 2, 3}, 0)
	require.Error(t, err)

	for _, n := range []int{16, 24, 32} {
		_, err := NewCtrCrypt(memory.NewLocal(16, 4), make(Key, n), 0)
		require.NoError(t, err, "key length %d", n)
	}
}

func TestCtrCryptRoundTrip(t *testing.T) {
	backend := memory.NewLocal(16, 8)
	c, err := NewCtrCrypt(backend, testKey, 0)
	require.NoError(t, err)

	plain := make([][]byte, 8)
	for i := range plain {
		plain[i] = bytes.Repeat([]byte{byte(i + 1)}, 16)
		require.NoError(t, c.Store(uint64(i), plain[i]))
	}

	// No two backend blocks may match, and none may equal its plaintext.
	seen := make(map[string]bool)
	buf := make([]byte, 16)
	for i := uint64(0); i < 8; i++ {
		require.NoError(t, backend.Load(i, buf))
		assert.NotEqual(t, plain[i], buf, "block %d stored in the clear", i)
		assert.False(t, seen[string(buf)], "backend blocks %d collides with an earlier one", i)
		seen[string(buf)] = true
	}

	// Reads may come in any order.
	for _, i := range []uint64{5, 0, 7, 3, 1, 6, 2, 4} {
		require.NoError(t, c.Load(i, buf))
		assert.Equal(t, plain[i], buf, "block %d", i)
	}
}

func TestCtrCryptSequentialContract(t *testing.T) {
	c, err := NewCtrCrypt(memory.NewLocal(16, 4), testKey, 0)
	require.NoError(t, err)

	buf := bytes.Repeat([]byte{0xAB}, 16)
	require.NoError(t, c.Store(0, buf))
	err = c.Store(2, buf)
	require.Error(t, err, "non-sequential write must be rejected")
}

func TestCtrCryptWrapsRounds(t *testing.T) {
	c, err := NewCtrCrypt(memory.NewLocal(16, 3), testKey, 0)
	require.NoError(t, err)

	first := bytes.Repeat([]byte{0x11}, 16)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, c.Store(i, first))
	}
	// Second round: same index, same plaintext, new counter.
	second := bytes.Repeat([]byte{0x11}, 16)
	require.NoError(t, c.Store(0, second))

	buf := make([]byte, 16)
	require.NoError(t, c.Load(0, buf))
	assert.Equal(t, second, buf)
	require.NoError(t, c.Load(1, buf))
	assert.Equal(t, first, buf, "unrewritten block from the previous round must still decrypt")
}

func TestRandCryptRoundTrip(t *testing.T) {
	backend := memory.NewLocal(48, 6)
	c, err := NewRandCrypt(backend, testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, c.Blocksize())

	plain := make([][]byte, 6)
	rng := rand.New(rand.NewPCG(7, 7))
	for _, i := range []uint64{3, 0, 5, 1, 4, 2} { // arbitrary write order
		plain[i] = make([]byte, 32)
		for j := range plain[i] {
			plain[i][j] = byte(rng.Uint64N(256))
		}
		require.NoError(t, c.Store(i, plain[i]))
	}
	buf := make([]byte, 32)
	for i := uint64(0); i < 6; i++ {
		require.NoError(t, c.Load(i, buf))
		assert.Equal(t, plain[i], buf, "block %d", i)
	}
}

func TestRandCryptFreshIVPerWrite(t *testing.T) {
	backend := memory.NewLocal(48, 2)
	c, err := NewRandCrypt(backend, testKey, nil)
	require.NoError(t, err)

	plain := bytes.Repeat([]byte{0x42}, 32)
	require.NoError(t, c.Store(0, plain))
	first := make([]byte, 48)
	require.NoError(t, backend.Load(0, first))

	require.NoError(t, c.Store(0, plain))
	second := make([]byte, 48)
	require.NoError(t, backend.Load(0, second))

	assert.NotEqual(t, first, second, "rewriting the same plaintext must produce a fresh ciphertext")

	buf := make([]byte, 32)
	require.NoError(t, c.Load(0, buf))
	assert.Equal(t, plain, buf)
}

func TestRandCryptBlocksizeChecks(t *testing.T) {
	_, err := NewRandCrypt(memory.NewLocal(16, 2), testKey, nil)
	require.Error(t, err, "no room for an IV")

	_, err = NewRandCrypt(memory.NewLocal(40, 2), testKey, nil)
	require.Error(t, err, "exposed blocksize must stay cipher-aligned")
}
