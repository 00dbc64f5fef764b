package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/marmos91/woram/pkg/crypto"
	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/split"
	"github.com/marmos91/woram/pkg/woram"
	"github.com/marmos91/woram/pkg/woram/bmno"
	"github.com/marmos91/woram/pkg/woram/detworam"
	"github.com/marmos91/woram/pkg/woram/recursive"
)

// Key resolves the AES key from the configured environment variable:
// 32, 48 or 64 hex characters are decoded directly into an
// AES-128/192/256 key; anything else is treated as a passphrase and
// stretched to a 256-bit key with HKDF-SHA256.
func (c *Config) Key() (crypto.Key, error) {
	raw := os.Getenv(c.Crypto.KeyEnv)
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is empty; it must hold the key material", c.Crypto.KeyEnv)
	}
	switch len(raw) {
	case 32, 48, 64:
		if key, err := hex.DecodeString(raw); err == nil {
			return crypto.Key(key), nil
		}
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(raw), []byte("woram block device key"), nil)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return crypto.Key(key), nil
}

func (c *Config) needsKey() bool {
	return strings.ToLower(c.Crypto.Split) != "none" || strings.ToLower(c.Woram.Kind) == "bmno"
}

// kind selects the plain-WORAM scheme. With "ctr" crypto, the cipher
// rides inside the scheme's own backend partitioning (each area is
// written in cursor order, which counter mode requires); the bmno
// scheme always carries its own CBC layer and ignores the setting.
func (c *Config) kind(key crypto.Key) woram.Kind {
	ctr := strings.ToLower(c.Crypto.Split) == "ctr"
	switch strings.ToLower(c.Woram.Kind) {
	case "onewrite":
		k := woram.OneWriteKind{Mult: c.Woram.Mult}
		if ctr {
			k.Key = key
		}
		return k
	case "bmno":
		return bmno.Kind{K: c.Woram.K, Key: key}
	default:
		k := detworam.Kind{Grow: c.Woram.Grow}
		if ctr {
			k.Split = split.CtrCryptSplit{Key: key}
		}
		return k
	}
}

// splitter selects the cipher around the position-map half of each
// backend split. The payload half is covered by the scheme itself
// (see kind). Position maps and trie nodes are rewritten in arbitrary
// order, which rules counter mode out there: a trie stack under "ctr"
// still protects its node area, but with the random-IV cipher. The
// recursive stack's pointer levels are already inside their own
// schemes' ciphers, so "ctr" leaves that split bare.
func (c *Config) splitter(key crypto.Key) split.Splitter {
	switch strings.ToLower(c.Crypto.Split) {
	case "rand":
		return split.RandCryptSplit{Key: key}
	case "ctr":
		if strings.ToLower(c.PosMap.Kind) == "trie" {
			return split.RandCryptSplit{Key: key}
		}
		return split.Plain{}
	default:
		return split.Plain{}
	}
}

func (c *Config) nodeKind() woram.Kind {
	// The trie's node store stays deterministic regardless of the
	// payload scheme; its positions must be resolvable by a plain
	// path walk, which the commit-driven schemes cannot promise. Any
	// encryption of the node area comes from the splitter, since the
	// packed node units are far below cipher alignment.
	return detworam.Kind{Grow: 4}
}

// Build assembles the configured stack and returns its top-level
// Memory, ready to hand to a device adapter. The returned Memory owns
// the whole stack, leaf included.
func Build(cfg *Config) (memory.Memory, error) {
	var key crypto.Key
	if cfg.needsKey() {
		var err error
		key, err = cfg.Key()
		if err != nil {
			return nil, err
		}
	}

	blocksize := int(cfg.Backend.Blocksize.Uint64())
	n := cfg.NumBlocks()
	kind := cfg.kind(key)
	splitter := cfg.splitter(key)

	var total uint64
	var err error
	trie := strings.ToLower(cfg.PosMap.Kind) == "trie"
	branching := cfg.PosMap.Branching
	if branching == 0 {
		branching = 2
	}
	if trie {
		total, err = recursive.TriePrefSize(kind, cfg.nodeKind(), splitter, blocksize, n, branching)
	} else {
		total, err = recursive.PrefSize(kind, splitter, blocksize, n)
	}
	if err != nil {
		return nil, err
	}

	leaf, err := cfg.leaf(blocksize, total)
	if err != nil {
		return nil, err
	}

	var top memory.Memory
	if trie {
		top, err = recursive.BuildTrie(leaf, n, kind, cfg.nodeKind(), splitter, branching)
	} else {
		top, err = recursive.Build(leaf, n, kind, splitter)
	}
	if err != nil {
		return nil, err
	}
	return top, nil
}

func (c *Config) leaf(blocksize int, blocks uint64) (memory.Memory, error) {
	switch strings.ToLower(c.Backend.Kind) {
	case "file":
		if c.Backend.Create {
			f, err := memory.CreateFile(c.Backend.Path, blocksize, blocks)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		f, err := memory.OpenFile(c.Backend.Path, blocksize, blocks)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return memory.NewLocal(blocksize, blocks), nil
	}
}
