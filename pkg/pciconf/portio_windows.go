//go:build windows
// +build windows

package pciconf

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// PortIO implements IO using the CPU-Z kernel driver
type PortIO struct {
	mu  sync.Mutex
	dll *windows.LazyDLL

	// Function pointers
	openDriver  *windows.LazyProc
	closeDriver *windows.LazyProc
	readByte    *windows.LazyProc
	readWord    *windows.LazyProc
	readDword   *windows.LazyProc
	writeByte   *windows.LazyProc
	writeWord   *windows.LazyProc
	writeDword  *windows.LazyProc
}

// OpenPortIO loads the CPU-Z driver DLL (assumes it's installed) and opens the driver
func OpenPortIO() (*PortIO, error) {
	dll := windows.NewLazyDLL("cpuz_x64.dll")
	if err := dll.Load(); err != nil {
		return nil, &PortAccessError{Op: "load driver", Err: err}
	}

	p := &PortIO{
		dll:         dll,
		openDriver:  dll.NewProc("OpenDriver"),
		closeDriver: dll.NewProc("CloseDriver"),
		readByte:    dll.NewProc("ReadIoPortByte"),
		readWord:    dll.NewProc("ReadIoPortWord"),
		readDword:   dll.NewProc("ReadIoPortDword"),
		writeByte:   dll.NewProc("WriteIoPortByte"),
		writeWord:   dll.NewProc("WriteIoPortWord"),
		writeDword:  dll.NewProc("WriteIoPortDword"),
	}

	for _, proc := range []*windows.LazyProc{
		p.openDriver, p.closeDriver,
		p.readByte, p.readWord, p.readDword,
		p.writeByte, p.writeWord, p.writeDword,
	} {
		if err := proc.Find(); err != nil {
			return nil, &PortAccessError{Op: "load driver", Err: err}
		}
	}

	ret, _, err := p.openDriver.Call()
	if ret == 0 {
		return nil, &PortAccessError{Op: "open driver", Err: fmt.Errorf("failed to open CPU-Z driver: %v", err)}
	}

	return p, nil
}

func (p *PortIO) in(proc *windows.LazyProc, port uint16) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret, _, _ := proc.Call(uintptr(port))
	return uint32(ret)
}

func (p *PortIO) out(proc *windows.LazyProc, port uint16, v uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret, _, err := proc.Call(uintptr(port), uintptr(v))
	if ret == 0 {
		return fmt.Errorf("out %#x: %v", port, err)
	}
	return nil
}

func (p *PortIO) In8(port uint16) (uint8, error) {
	return uint8(p.in(p.readByte, port)), nil
}

func (p *PortIO) In16(port uint16) (uint16, error) {
	return uint16(p.in(p.readWord, port)), nil
}

func (p *PortIO) In32(port uint16) (uint32, error) {
	return p.in(p.readDword, port), nil
}

func (p *PortIO) Out8(port uint16, v uint8) error {
	return p.out(p.writeByte, port, uint32(v))
}

func (p *PortIO) Out16(port uint16, v uint16) error {
	return p.out(p.writeWord, port, uint32(v))
}

func (p *PortIO) Out32(port uint16, v uint32) error {
	return p.out(p.writeDword, port, v)
}

// Close closes the CPU-Z driver
func (p *PortIO) Close() error {
	if p.closeDriver != nil {
		p.closeDriver.Call()
	}
	return nil
}
