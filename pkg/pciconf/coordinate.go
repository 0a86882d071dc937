// Package pciconf provides access to PCI configuration space through
// configuration mechanism #1 (the 0xCF8/0xCFC port pair) and a few
// alternative backends used for replay and cross-checking.
package pciconf

import (
	"errors"
	"fmt"
)

// Configuration mechanism #1 I/O ports
const (
	ConfigAddressPort = 0x0CF8
	ConfigDataPort    = 0x0CFC
	ConfigEnable      = 0x80000000
	ConfigSpaceSize   = 0x100
)

// Standard header offsets
const (
	VendorIDOffset = 0x00
	DeviceIDOffset = 0x02
)

// ErrInvalidCoordinate is returned for coordinates outside the PCI address
// bounds or misaligned for the requested width.
var ErrInvalidCoordinate = errors.New("invalid PCI coordinate")

// Width is the size of a configuration space access in bits
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
)

// Valid reports whether w is one of the supported access widths
func (w Width) Valid() bool {
	return w == Width8 || w == Width16 || w == Width32
}

// Bytes returns the access size in bytes
func (w Width) Bytes() int {
	return int(w) / 8
}

// Mask returns a mask covering every bit of the width
func (w Width) Mask() uint32 {
	if w == Width32 {
		return 0xFFFFFFFF
	}
	return (1 << uint(w)) - 1
}

// Coordinate identifies one location in PCI configuration space
type Coordinate struct {
	Bus      uint8 `json:"bus" yaml:"bus"`
	Device   uint8 `json:"device" yaml:"device"`
	Function uint8 `json:"function" yaml:"function"`
	Offset   uint8 `json:"offset" yaml:"offset"`
}

// BDF returns a coordinate at offset 0 of the given function
func BDF(bus, device, function uint8) Coordinate {
	return Coordinate{Bus: bus, Device: device, Function: function}
}

// At returns a copy of c pointing at another register of the same function
func (c Coordinate) At(offset uint8) Coordinate {
	c.Offset = offset
	return c
}

// Validate checks device/function bounds and alignment for an access of width w
func (c Coordinate) Validate(w Width) error {
	if !w.Valid() {
		return fmt.Errorf("%w: unsupported width %d", ErrInvalidCoordinate, w)
	}
	if c.Device > 31 {
		return fmt.Errorf("%w: device %d out of range", ErrInvalidCoordinate, c.Device)
	}
	if c.Function > 7 {
		return fmt.Errorf("%w: function %d out of range", ErrInvalidCoordinate, c.Function)
	}
	if int(c.Offset)%w.Bytes() != 0 {
		return fmt.Errorf("%w: offset %#02x not aligned to %d bits", ErrInvalidCoordinate, c.Offset, w)
	}
	return nil
}

// Address encodes the dword-aligned configuration address written to 0xCF8
func (c Coordinate) Address() uint32 {
	return ConfigEnable |
		uint32(c.Bus)<<16 |
		uint32(c.Device)<<11 |
		uint32(c.Function)<<8 |
		uint32(c.Offset&0xFC)
}

// Slot returns the bus:device.function part formatted like lspci
func (c Coordinate) Slot() string {
	return fmt.Sprintf("%02x:%02x.%x", c.Bus, c.Device, c.Function)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s+%#02x", c.Slot(), c.Offset)
}
