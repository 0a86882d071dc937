// Package physmem maps physical memory windows such as the MCHBAR
// register block of the host bridge.
package physmem

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned for reads past the end of a window
var ErrOutOfRange = errors.New("offset outside mapped window")

// Mapper maps size bytes of physical memory starting at base
type Mapper interface {
	Map(base uint64, size int) (Window, error)
}

// Window is a mapped physical range. Offsets are relative to the base
// passed to Map.
type Window interface {
	Read32(offset uint32) (uint32, error)
	Close() error
}

// MapError reports a failure to map a physical range
type MapError struct {
	Base uint64
	Size int
	Err  error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("failed to map %#x bytes at %#x: %v", e.Size, e.Base, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

func checkRange(offset uint32, size int) error {
	if offset&3 != 0 {
		return fmt.Errorf("%w: %#x is not dword aligned", ErrOutOfRange, offset)
	}
	if uint64(offset)+4 > uint64(size) {
		return fmt.Errorf("%w: %#x (window is %#x bytes)", ErrOutOfRange, offset, size)
	}
	return nil
}
