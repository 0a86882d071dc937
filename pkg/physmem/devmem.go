package physmem

import (
	"sync"
	"unsafe"

	"periph.io/x/periph/host/pmem"
)

// Devmem maps physical memory through /dev/mem. Mapping needs root.
type Devmem struct{}

// Map implements Mapper
func (Devmem) Map(base uint64, size int) (Window, error) {
	v, err := pmem.Map(base, size)
	if err != nil {
		return nil, &MapError{Base: base, Size: size, Err: err}
	}
	return &view{v: v, size: size}, nil
}

type view struct {
	mu   sync.Mutex
	v    *pmem.View
	size int
}

func (w *view) Read32(offset uint32) (uint32, error) {
	if err := checkRange(offset, w.size); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.v == nil {
		return 0, ErrOutOfRange
	}
	// MMIO registers must be read with a single 32-bit load
	return *(*uint32)(unsafe.Pointer(&w.v.Slice[offset])), nil
}

func (w *view) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.v == nil {
		return nil
	}
	err := w.v.Close()
	w.v = nil
	return err
}
