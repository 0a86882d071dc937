package pciconf

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ConfigSpacePort reads and writes PCI configuration registers
type ConfigSpacePort interface {
	Read(c Coordinate, w Width) (uint32, error)
	Write(c Coordinate, w Width, value uint32) error
}

// IO is the raw x86 I/O port primitive a Mechanism1 port drives
type IO interface {
	In8(port uint16) (uint8, error)
	In16(port uint16) (uint16, error)
	In32(port uint16) (uint32, error)
	Out8(port uint16, v uint8) error
	Out16(port uint16, v uint16) error
	Out32(port uint16, v uint32) error
	Close() error
}

// PortAccessError reports that configuration space could not be reached at
// the OS or hardware level (missing privilege, missing device node, ...)
type PortAccessError struct {
	Op         string
	Coordinate Coordinate
	Err        error
}

func (e *PortAccessError) Error() string {
	return fmt.Sprintf("port access %s %s: %v", e.Op, e.Coordinate, e.Err)
}

func (e *PortAccessError) Unwrap() error {
	return e.Err
}

// IsPermission reports whether the underlying failure was a privilege problem
func (e *PortAccessError) IsPermission() bool {
	return errors.Is(e.Err, os.ErrPermission)
}

// Mechanism1 is a ConfigSpacePort issuing CF8/CFC transactions. The
// address/data ports are global hardware state, so every transaction holds
// mu for the address write and the paired data access.
type Mechanism1 struct {
	mu sync.Mutex
	io IO
}

// NewMechanism1 wraps an IO backend
func NewMechanism1(io IO) *Mechanism1 {
	return &Mechanism1{io: io}
}

// Read performs one address-write/data-read transaction
func (m *Mechanism1) Read(c Coordinate, w Width) (uint32, error) {
	if err := c.Validate(w); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.io.Out32(ConfigAddressPort, c.Address()); err != nil {
		return 0, &PortAccessError{Op: "read", Coordinate: c, Err: err}
	}

	dataPort := uint16(ConfigDataPort) + uint16(c.Offset&3)
	var (
		v   uint32
		err error
	)
	switch w {
	case Width8:
		var b uint8
		b, err = m.io.In8(dataPort)
		v = uint32(b)
	case Width16:
		var h uint16
		h, err = m.io.In16(dataPort)
		v = uint32(h)
	default:
		v, err = m.io.In32(dataPort)
	}
	if err != nil {
		return 0, &PortAccessError{Op: "read", Coordinate: c, Err: err}
	}
	return v, nil
}

// Write performs one address-write/data-write transaction
func (m *Mechanism1) Write(c Coordinate, w Width, value uint32) error {
	if err := c.Validate(w); err != nil {
		return err
	}
	if value&^w.Mask() != 0 {
		return fmt.Errorf("%w: value %#x wider than %d bits", ErrInvalidCoordinate, value, w)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.io.Out32(ConfigAddressPort, c.Address()); err != nil {
		return &PortAccessError{Op: "write", Coordinate: c, Err: err}
	}

	dataPort := uint16(ConfigDataPort) + uint16(c.Offset&3)
	var err error
	switch w {
	case Width8:
		err = m.io.Out8(dataPort, uint8(value))
	case Width16:
		err = m.io.Out16(dataPort, uint16(value))
	default:
		err = m.io.Out32(dataPort, value)
	}
	if err != nil {
		return &PortAccessError{Op: "write", Coordinate: c, Err: err}
	}
	return nil
}

// Close releases the IO backend
func (m *Mechanism1) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.io.Close()
}
