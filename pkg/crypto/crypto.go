// Package crypto provides the two block-cipher wrappers the WORAM
// stack needs: CtrCrypt (AES in counter mode, which requires strictly
// sequential writes) and RandCrypt (AES-CBC with a fresh random IV
// stored alongside every block). CtrCrypt's counters are derived
// deterministically; RandCrypt's IVs come from
// github.com/sixafter/aes-ctr-drbg's NIST SP 800-90A AES-CTR-DRBG
// reader, seeded from OS entropy.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"

	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/woramerr"
)

// cryptBlockSize is the AES block size in bytes (128 bits).
const cryptBlockSize = 16

// Key is raw AES key material: 16, 24 or 32 bytes for AES-128/192/256.
type Key []byte

func (k Key) validate(op string) error {
	switch len(k) {
	case 16, 24, 32:
		return nil
	default:
		return woramerr.InvalidAccessf(op, "key must be 16, 24 or 32 bytes, got %d", len(k))
	}
}

// CtrCrypt wraps backend in AES-CTR encryption. Unlike a general
// stream cipher, it requires that Store be called with strictly
// increasing index values, wrapping back to 0 after Size()-1: that is
// what lets it derive the counter purely from (round, index) instead
// of storing an IV per block, so the exposed blocksize equals the
// backend's.
type CtrCrypt struct {
	backend memory.Memory
	block   cipher.Block

	round   uint64
	nextpos uint64
}

// NewCtrCrypt wraps backend for AES-CTR encryption/decryption under
// key. startRound is added to every counter value, so two CtrCrypts
// with different startRound values use disjoint counter ranges; the
// sequential write cursor always starts at index 0.
// blocksize must be a multiple of 16 bytes.
func NewCtrCrypt(backend memory.Memory, key Key, startRound uint64) (*CtrCrypt, error) {
	const op = "CtrCrypt.New"
	if err := key.validate(op); err != nil {
		return nil, err
	}
	if backend.Blocksize()%cryptBlockSize != 0 {
		return nil, woramerr.InvalidAccessf(op, "blocksize %d is not a multiple of %d", backend.Blocksize(), cryptBlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.InvalidAccess, op, "constructing AES cipher", err)
	}
	return &CtrCrypt{backend: backend, block: block, round: startRound}, nil
}

func (c *CtrCrypt) Blocksize() int { return c.backend.Blocksize() }
func (c *CtrCrypt) Size() uint64   { return c.backend.Size() }
func (c *CtrCrypt) Good() bool     { return c.backend.Good() }
func (c *CtrCrypt) Flush() error   { return c.backend.Flush() }

// counterFor builds the 16-byte keystream seed for chunk `chunk`
// (0-based, within a single block) of the block encrypted/decrypted
// under counter value ctr: low 8 bytes hold ctr little-endian, high 8
// bytes hold the chunk index.
func counterFor(ctr uint64, chunk uint64) [cryptBlockSize]byte {
	var buf [cryptBlockSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], ctr)
	binary.LittleEndian.PutUint64(buf[8:16], chunk)
	return buf
}

func (c *CtrCrypt) xcrypt(ctr uint64, dst, src []byte) {
	n := len(src) / cryptBlockSize
	var pad [cryptBlockSize]byte
	for i := 0; i < n; i++ {
		counter := counterFor(ctr, uint64(i))
		c.block.Encrypt(pad[:], counter[:])
		base := i * cryptBlockSize
		for j := 0; j < cryptBlockSize; j++ {
			dst[base+j] = src[base+j] ^ pad[j]
		}
	}
}

func (c *CtrCrypt) Load(index uint64, buf []byte) error {
	const op = "CtrCrypt.Load"
	ctext := make([]byte, c.Blocksize())
	if err := c.backend.Load(index, ctext); err != nil {
		return err
	}
	if err := woramerr.CheckLength(op, len(buf), c.Blocksize()); err != nil {
		return err
	}
	ctr := c.round + index
	if index >= c.nextpos {
		ctr -= c.Size()
	}
	c.xcrypt(ctr, buf, ctext)
	return nil
}

func (c *CtrCrypt) Store(index uint64, buf []byte) error {
	const op = "CtrCrypt.Store"
	if index != c.nextpos {
		return woramerr.InvalidAccessf(op, "non-sequential write: index %d, expected %d", index, c.nextpos)
	}
	if err := woramerr.CheckLength(op, len(buf), c.Blocksize()); err != nil {
		return err
	}
	ctext := make([]byte, c.Blocksize())
	c.xcrypt(c.round+index, ctext, buf)
	if err := c.backend.Store(index, ctext); err != nil {
		return err
	}
	c.nextpos++
	if c.nextpos == c.Size() {
		c.nextpos = 0
		c.round += c.Size()
	}
	return nil
}

var _ memory.Memory = (*CtrCrypt)(nil)

// RandCrypt wraps backend in AES-CBC encryption with a fresh random
// IV drawn per write and stored as the first 16 bytes of each backend
// block. Its exposed block size is backend.Blocksize()-16. Writes may
// land in any order; two writes of the same plaintext produce
// different ciphertexts.
type RandCrypt struct {
	backend   memory.Memory
	encBlock  cipher.Block
	decBlock  cipher.Block
	blocksize int
	rng       io.Reader
}

// NewRandCrypt wraps backend for AES-CBC encryption under key, drawing
// IVs from rng (pass nil to use the package's default CTR-DRBG reader,
// ctrdrbg.Reader, which is seeded from OS entropy).
func NewRandCrypt(backend memory.Memory, key Key, rng io.Reader) (*RandCrypt, error) {
	const op = "RandCrypt.New"
	if err := key.validate(op); err != nil {
		return nil, err
	}
	if backend.Blocksize() <= cryptBlockSize {
		return nil, woramerr.InvalidAccessf(op, "backend blocksize %d must exceed IV size %d", backend.Blocksize(), cryptBlockSize)
	}
	blocksize := backend.Blocksize() - cryptBlockSize
	if blocksize%cryptBlockSize != 0 {
		return nil, woramerr.InvalidAccessf(op, "exposed blocksize %d is not a multiple of %d", blocksize, cryptBlockSize)
	}
	encBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.InvalidAccess, op, "constructing AES cipher", err)
	}
	decBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, woramerr.Wrap(woramerr.InvalidAccess, op, "constructing AES cipher", err)
	}
	if rng == nil {
		rng = ctrdrbg.Reader
	}
	return &RandCrypt{backend: backend, encBlock: encBlock, decBlock: decBlock, blocksize: blocksize, rng: rng}, nil
}

func (c *RandCrypt) Blocksize() int { return c.blocksize }
func (c *RandCrypt) Size() uint64   { return c.backend.Size() }
func (c *RandCrypt) Good() bool     { return c.backend.Good() }
func (c *RandCrypt) Flush() error   { return c.backend.Flush() }

func (c *RandCrypt) Load(index uint64, buf []byte) error {
	const op = "RandCrypt.Load"
	if err := woramerr.CheckLength(op, len(buf), c.blocksize); err != nil {
		return err
	}
	ctext := make([]byte, c.backend.Blocksize())
	if err := c.backend.Load(index, ctext); err != nil {
		return err
	}
	iv := ctext[:cryptBlockSize]
	mode := cipher.NewCBCDecrypter(c.decBlock, iv)
	mode.CryptBlocks(buf, ctext[cryptBlockSize:])
	return nil
}

func (c *RandCrypt) Store(index uint64, buf []byte) error {
	const op = "RandCrypt.Store"
	if err := woramerr.CheckLength(op, len(buf), c.blocksize); err != nil {
		return err
	}
	ctext := make([]byte, c.backend.Blocksize())
	if _, err := io.ReadFull(c.rng, ctext[:cryptBlockSize]); err != nil {
		return woramerr.Wrap(woramerr.IOError, op, "drawing IV from DRBG", err)
	}
	iv := make([]byte, cryptBlockSize)
	copy(iv, ctext[:cryptBlockSize])
	mode := cipher.NewCBCEncrypter(c.encBlock, iv)
	mode.CryptBlocks(ctext[cryptBlockSize:], buf)
	return c.backend.Store(index, ctext)
}

var _ memory.Memory = (*RandCrypt)(nil)
