// Package device adapts the top of a WORAM stack to the capability
// interface a block-device export server consumes: block-addressed
// read/write plus flush, trim, and a health query. The wire protocol
// itself (handshake, request framing) lives with the server; this
// package only guarantees that whatever Memory sits underneath looks
// like a well-behaved fixed-geometry disk, including byte-addressed
// access with bracketing reads at the unaligned edges.
package device

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/marmos91/woram/pkg/memory"
	"github.com/marmos91/woram/pkg/woramerr"
)

// Device is what an export server drives. Read and Write move whole
// blocks; Flushes and Trims report whether the corresponding commands
// are worth advertising to the client.
type Device interface {
	Blocksize() int
	NumBlocks() uint64
	Good() bool

	Read(index uint64, buf []byte) error
	Write(index uint64, buf []byte) error

	Flushes() bool
	Flush() error

	Trims() bool
	Trim(index, count uint64) error
}

// MemDevice exposes a memory.Memory as a Device. Trim writes zero
// blocks over the trimmed range, which keeps the write trace shaped
// like any other write burst rather than leaking that a discard
// happened.
type MemDevice struct {
	mem memory.Memory
}

// NewMemDevice wraps mem. Ownership transfers in: the device is the
// only user of mem from here on.
func NewMemDevice(mem memory.Memory) *MemDevice {
	return &MemDevice{mem: mem}
}

func (d *MemDevice) Blocksize() int    { return d.mem.Blocksize() }
func (d *MemDevice) NumBlocks() uint64 { return d.mem.Size() }
func (d *MemDevice) Good() bool        { return d.mem.Good() }
func (d *MemDevice) Flushes() bool     { return true }
func (d *MemDevice) Flush() error      { return d.mem.Flush() }
func (d *MemDevice) Trims() bool       { return true }

// SizeBytes returns the device capacity in bytes.
func (d *MemDevice) SizeBytes() uint64 {
	return d.mem.Size() * uint64(d.mem.Blocksize())
}

func (d *MemDevice) Read(index uint64, buf []byte) error {
	return d.mem.Load(index, buf)
}

func (d *MemDevice) Write(index uint64, buf []byte) error {
	return d.mem.Store(index, buf)
}

func (d *MemDevice) Trim(index, count uint64) error {
	const op = "MemDevice.Trim"
	if index+count > d.mem.Size() {
		return woramerr.OutOfRangef(op, "trim of %d blocks at %d exceeds device size %d", count, index, d.mem.Size())
	}
	zero := make([]byte, d.mem.Blocksize())
	for i := uint64(0); i < count; i++ {
		if err := d.mem.Store(index+i, zero); err != nil {
			return err
		}
	}
	return nil
}

// ReadAt fills buf from byte offset off, bracketing unaligned edges
// with whole-block loads.
func (d *MemDevice) ReadAt(buf []byte, off uint64) error {
	const op = "MemDevice.ReadAt"
	bs := uint64(d.mem.Blocksize())
	if off+uint64(len(buf)) > d.SizeBytes() {
		return woramerr.OutOfRangef(op, "read of %d bytes at offset %d exceeds device size %d", len(buf), off, d.SizeBytes())
	}
	block := make([]byte, bs)
	for len(buf) > 0 {
		index := off / bs
		skip := off % bs
		n := bs - skip
		if n > uint64(len(buf)) {
			n = uint64(len(buf))
		}
		if err := d.mem.Load(index, block); err != nil {
			return err
		}
		copy(buf[:n], block[skip:skip+n])
		buf = buf[n:]
		off += n
	}
	return nil
}

// WriteAt stores buf at byte offset off. A partial block at either
// edge costs one bracketing Load to preserve the bytes the write does
// not cover; the aligned middle goes straight to Store.
func (d *MemDevice) WriteAt(buf []byte, off uint64) error {
	const op = "MemDevice.WriteAt"
	bs := uint64(d.mem.Blocksize())
	if off+uint64(len(buf)) > d.SizeBytes() {
		return woramerr.OutOfRangef(op, "write of %d bytes at offset %d exceeds device size %d", len(buf), off, d.SizeBytes())
	}
	block := make([]byte, bs)
	for len(buf) > 0 {
		index := off / bs
		skip := off % bs
		n := bs - skip
		if n > uint64(len(buf)) {
			n = uint64(len(buf))
		}
		if n < bs {
			if err := d.mem.Load(index, block); err != nil {
				return err
			}
		}
		copy(block[skip:skip+n], buf[:n])
		if err := d.mem.Store(index, block); err != nil {
			return err
		}
		buf = buf[n:]
		off += n
	}
	return nil
}

var _ Device = (*MemDevice)(nil)

// Errno maps a device error onto the errno an export server should
// put in its reply: EFAULT for out-of-range requests, EIO for
// anything else that went wrong, 0 for success.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	var werr *woramerr.WError
	if errors.As(err, &werr) && werr.Kind == woramerr.OutOfRange {
		return int(unix.EFAULT)
	}
	return int(unix.EIO)
}
