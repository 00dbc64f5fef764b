package bmno

import "github.com/marmos91/woram/pkg/posmap"

// metaRecord is the per-primary-slot record: ind is the logical index
// currently occupying the slot (or a sentinel >= the BMNO's logical
// size when the slot has never been used), iv is the AES-CBC IV its
// ciphertext was last encrypted with.
type metaRecord struct {
	ind uint64
	iv  []byte // ivSize bytes
}

func (b *BMNO) indWidth() int {
	w := posmap.BytesFor(b.size)
	if w == 0 {
		w = 1
	}
	return w
}

func (b *BMNO) metaLen() int { return b.indWidth() + ivSize }

func (b *BMNO) encodeMeta(m metaRecord) []byte {
	buf := make([]byte, b.metaLen())
	w := b.indWidth()
	n := m.ind
	for i := 0; i < w; i++ {
		buf[i] = byte(n)
		n >>= 8
	}
	copy(buf[w:], m.iv)
	return buf
}

func (b *BMNO) decodeMeta(buf []byte) metaRecord {
	w := b.indWidth()
	var ind uint64
	for i := w - 1; i >= 0; i-- {
		ind = (ind << 8) | uint64(buf[i])
	}
	iv := make([]byte, ivSize)
	copy(iv, buf[w:w+ivSize])
	return metaRecord{ind: ind, iv: iv}
}

func (b *BMNO) loadMeta(position uint64) (metaRecord, error) {
	buf := make([]byte, b.metaLen())
	if err := b.meta.Load(position, buf); err != nil {
		return metaRecord{}, err
	}
	return b.decodeMeta(buf), nil
}

func (b *BMNO) storeMeta(position uint64, m metaRecord) error {
	return b.meta.Store(position, b.encodeMeta(m))
}
