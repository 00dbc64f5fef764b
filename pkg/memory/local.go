package memory

// LocalMem stores every block in a plain byte slice in process
// memory. It never fails and is always Good.
type LocalMem struct {
	blocksize int
	backend   [][]byte
}

// NewLocal allocates a LocalMem with the given block size and block
// count. Every block starts zeroed.
func NewLocal(blocksize int, size uint64) *LocalMem {
	backend := make([][]byte, size)
	for i := range backend {
		backend[i] = make([]byte, blocksize)
	}
	return &LocalMem{blocksize: blocksize, backend: backend}
}

func (m *LocalMem) Blocksize() int { return m.blocksize }
func (m *LocalMem) Size() uint64   { return uint64(len(m.backend)) }
func (m *LocalMem) Good() bool     { return true }

func (m *LocalMem) Load(index uint64, buf []byte) error {
	if err := checkIndex("LocalMem.Load", index, m.Size()); err != nil {
		return err
	}
	if err := checkBuf("LocalMem.Load", buf, m.blocksize); err != nil {
		return err
	}
	copy(buf, m.backend[index])
	return nil
}

func (m *LocalMem) Store(index uint64, buf []byte) error {
	if err := checkIndex("LocalMem.Store", index, m.Size()); err != nil {
		return err
	}
	if err := checkBuf("LocalMem.Store", buf, m.blocksize); err != nil {
		return err
	}
	copy(m.backend[index], buf)
	return nil
}

func (m *LocalMem) Flush() error { return nil }
