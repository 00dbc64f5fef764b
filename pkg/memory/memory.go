// Package memory defines the Memory contract every layer of the WORAM
// stack is built on top of, plus the two leaf implementations
// (LocalMem, FileMem) that terminate the stack in RAM or on disk.
package memory

import "github.com/marmos91/woram/pkg/woramerr"

// Memory is a fixed-size array of fixed-size blocks. It is the single
// abstraction every Split, PackMem, crypto wrapper, PositionMap and
// Woram in this module is built against: a leaf Memory stores bytes
// directly, everything above it composes smaller Memory-shaped pieces
// into bigger ones.
//
// Load and Store operate on exactly one block each; callers are
// responsible for providing a buf of exactly Blocksize() bytes. Index
// is always in [0, Size()).
type Memory interface {
	// Blocksize returns the fixed size in bytes of every block in this
	// Memory.
	Blocksize() int

	// Size returns the number of blocks in this Memory.
	Size() uint64

	// Load reads block index into buf, which must have length
	// Blocksize().
	Load(index uint64, buf []byte) error

	// Store writes buf, which must have length Blocksize(), to block
	// index.
	Store(index uint64, buf []byte) error

	// Flush ensures any buffered writes reach stable storage. Layers
	// that hold no write buffer of their own pass this straight
	// through to their backend.
	Flush() error

	// Good reports whether this Memory is still usable. A leaf Memory
	// latches false after the first I/O error instead of aborting the
	// process, so a caller such as pkg/device can decide whether to
	// retry, surface the failure, or tear the device down.
	Good() bool
}

func checkIndex(op string, index, size uint64) error {
	return woramerr.CheckRange(op, index, 0, size)
}

func checkBuf(op string, buf []byte, blocksize int) error {
	return woramerr.CheckLength(op, len(buf), blocksize)
}
