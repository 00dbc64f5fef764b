package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/woram/internal/bytesize"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Backend.Kind)
	assert.Equal(t, "det", cfg.Woram.Kind)
	assert.Equal(t, 4*bytesize.KiB, cfg.Backend.Blocksize)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "woram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  kind: file
  path: /tmp/woram.img
  blocksize: 1KiB
  size: 64KiB
  create: true
woram:
  kind: bmno
  k: 4
posmap:
  kind: trie
  branching: 4
crypto:
  split: rand
  key_env: TEST_WORAM_KEY
logging:
  level: DEBUG
  format: json
  output: stdout
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Backend.Kind)
	assert.Equal(t, "/tmp/woram.img", cfg.Backend.Path)
	assert.Equal(t, bytesize.KiB, cfg.Backend.Blocksize)
	assert.Equal(t, 64*bytesize.KiB, cfg.Backend.Size)
	assert.True(t, cfg.Backend.Create)
	assert.Equal(t, "bmno", cfg.Woram.Kind)
	assert.Equal(t, 4, cfg.Woram.K)
	assert.Equal(t, "trie", cfg.PosMap.Kind)
	assert.Equal(t, 4, cfg.PosMap.Branching)
	assert.Equal(t, "rand", cfg.Crypto.Split)
	assert.Equal(t, uint64(64), cfg.NumBlocks())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend kind", func(c *Config) { c.Backend.Kind = "s3" }},
		{"file without path", func(c *Config) { c.Backend.Kind = "file"; c.Backend.Path = "" }},
		{"unaligned blocksize", func(c *Config) { c.Backend.Blocksize = 100 }},
		{"size below one block", func(c *Config) { c.Backend.Size = 1 }},
		{"bad woram kind", func(c *Config) { c.Woram.Kind = "pathoram" }},
		{"bad posmap kind", func(c *Config) { c.PosMap.Kind = "flat" }},
		{"branching of one", func(c *Config) { c.PosMap.Branching = 1 }},
		{"bad crypto split", func(c *Config) { c.Crypto.Split = "gcm" }},
		{"crypto without key env", func(c *Config) { c.Crypto.Split = "ctr"; c.Crypto.KeyEnv = "" }},
		{"bmno without key env", func(c *Config) { c.Woram.Kind = "bmno"; c.Crypto.KeyEnv = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestKeyFromHexAndPassphrase(t *testing.T) {
	cfg := Default()
	cfg.Crypto.KeyEnv = "TEST_WORAM_KEY"

	t.Setenv("TEST_WORAM_KEY", "3d378f12a05bc47e9102d34465f68718")
	key, err := cfg.Key()
	require.NoError(t, err)
	assert.Len(t, []byte(key), 16)
	assert.Equal(t, byte(0x3D), key[0])

	t.Setenv("TEST_WORAM_KEY", "correct horse battery staple")
	key, err = cfg.Key()
	require.NoError(t, err)
	assert.Len(t, []byte(key), 32)

	again, err := cfg.Key()
	require.NoError(t, err)
	assert.Equal(t, key, again, "passphrase derivation must be deterministic")

	t.Setenv("TEST_WORAM_KEY", "")
	_, err = cfg.Key()
	require.Error(t, err)
}

func TestBuildDefaultStack(t *testing.T) {
	cfg := Default()
	cfg.Backend.Blocksize = 64
	cfg.Backend.Size = 64 * 64 // 64 blocks

	mem, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, 64, mem.Blocksize())
	assert.Equal(t, uint64(64), mem.Size())

	blk := make([]byte, 64)
	for i := range blk {
		blk[i] = 0x42
	}
	require.NoError(t, mem.Store(7, blk))
	got := make([]byte, 64)
	require.NoError(t, mem.Load(7, got))
	assert.Equal(t, blk, got)
}

func TestBuildTrieStackWithCtr(t *testing.T) {
	t.Setenv("TEST_WORAM_KEY", "3d378f12a05bc47e9102d34465f68718")
	cfg := Default()
	cfg.Backend.Blocksize = 64
	cfg.Backend.Size = 32 * 64
	cfg.PosMap.Kind = "trie"
	cfg.Crypto.Split = "ctr"
	cfg.Crypto.KeyEnv = "TEST_WORAM_KEY"

	mem, err := Build(cfg)
	require.NoError(t, err)

	blk := make([]byte, 64)
	for i := uint64(0); i < mem.Size(); i++ {
		for j := range blk {
			blk[j] = byte(i + 1)
		}
		require.NoError(t, mem.Store(i, blk))
	}
	got := make([]byte, 64)
	for i := uint64(0); i < mem.Size(); i++ {
		require.NoError(t, mem.Load(i, got))
		for j := range got {
			require.Equal(t, byte(i+1), got[j], "block %d byte %d", i, j)
		}
	}
}

func TestBuildFileBackedStack(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Backend.Kind = "file"
	cfg.Backend.Path = filepath.Join(dir, "woram.img")
	cfg.Backend.Create = true
	cfg.Backend.Blocksize = 64
	cfg.Backend.Size = 16 * 64

	mem, err := Build(cfg)
	require.NoError(t, err)

	blk := make([]byte, 64)
	blk[0] = 0x77
	require.NoError(t, mem.Store(3, blk))
	require.NoError(t, mem.Flush())

	got := make([]byte, 64)
	require.NoError(t, mem.Load(3, got))
	assert.Equal(t, blk, got)

	info, err := os.Stat(cfg.Backend.Path)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(16*64), "backing file is provisioned for the whole stack")
}

func TestWriteFileRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "woram.yaml")
	require.NoError(t, Default().WriteFile(path, false))
	require.Error(t, Default().WriteFile(path, false))
	require.NoError(t, Default().WriteFile(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
