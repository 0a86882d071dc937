package physmem

import (
	"fmt"
	"sync"
)

// Image is a sparse in-memory stand-in for physical memory. Unset dwords
// read as zero.
type Image struct {
	mu    sync.RWMutex
	words map[uint64]uint32

	// Maps records every successful Map call
	Maps []uint64
}

// NewImage returns an empty image
func NewImage() *Image {
	return &Image{words: make(map[uint64]uint32)}
}

// Set stores a dword at a physical address
func (img *Image) Set(addr uint64, value uint32) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.words[addr&^3] = value
}

// Map implements Mapper
func (img *Image) Map(base uint64, size int) (Window, error) {
	if size <= 0 {
		return nil, &MapError{Base: base, Size: size, Err: fmt.Errorf("invalid size")}
	}
	img.mu.Lock()
	img.Maps = append(img.Maps, base)
	img.mu.Unlock()
	return &imageWindow{img: img, base: base, size: size}, nil
}

type imageWindow struct {
	img  *Image
	base uint64
	size int
}

func (w *imageWindow) Read32(offset uint32) (uint32, error) {
	if err := checkRange(offset, w.size); err != nil {
		return 0, err
	}
	w.img.mu.RLock()
	defer w.img.mu.RUnlock()
	return w.img.words[w.base+uint64(offset)], nil
}

func (w *imageWindow) Close() error { return nil }
