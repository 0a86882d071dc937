//go:build !windows && !(linux && amd64)
// +build !windows
// +build !linux !amd64

package pciconf

import (
	"errors"
	"runtime"
)

// PortIO is unavailable on this platform (stub)
type PortIO struct{}

// OpenPortIO always fails on this platform (stub)
func OpenPortIO() (*PortIO, error) {
	return nil, &PortAccessError{
		Op:  "ioperm",
		Err: errors.New("port I/O is not supported on " + runtime.GOOS + "/" + runtime.GOARCH),
	}
}

func (p *PortIO) In8(uint16) (uint8, error)   { return 0, errors.New("port I/O unavailable") }
func (p *PortIO) In16(uint16) (uint16, error) { return 0, errors.New("port I/O unavailable") }
func (p *PortIO) In32(uint16) (uint32, error) { return 0, errors.New("port I/O unavailable") }
func (p *PortIO) Out8(uint16, uint8) error    { return errors.New("port I/O unavailable") }
func (p *PortIO) Out16(uint16, uint16) error  { return errors.New("port I/O unavailable") }
func (p *PortIO) Out32(uint16, uint32) error  { return errors.New("port I/O unavailable") }
func (p *PortIO) Close() error                { return nil }
