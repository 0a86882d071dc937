package pciconf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSysfsRoot is where linux exposes per-function config space files
const DefaultSysfsRoot = "/sys/bus/pci/devices"

// SysfsPort reads configuration space through the kernel's sysfs config
// files instead of raw port I/O. Without root the kernel only returns the
// first 64 bytes of each function.
type SysfsPort struct {
	Root   string
	Domain uint16

	mu    sync.Mutex
	files map[string]*os.File
}

// NewSysfsPort returns a port rooted at DefaultSysfsRoot for PCI domain 0
func NewSysfsPort() *SysfsPort {
	return &SysfsPort{Root: DefaultSysfsRoot}
}

func (s *SysfsPort) path(c Coordinate) string {
	return filepath.Join(s.Root, fmt.Sprintf("%04x:%s", s.Domain, c.Slot()), "config")
}

func (s *SysfsPort) file(c Coordinate, write bool) (*os.File, error) {
	name := s.path(c)
	if f, ok := s.files[name]; ok && !write {
		return f, nil
	}
	flag := os.O_RDONLY
	if write {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(name, flag, 0)
	if err != nil {
		return nil, err
	}
	if !write {
		if s.files == nil {
			s.files = make(map[string]*os.File)
		}
		s.files[name] = f
	}
	return f, nil
}

func (s *SysfsPort) Read(c Coordinate, w Width) (uint32, error) {
	if err := c.Validate(w); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(c, false)
	if err != nil {
		return 0, &PortAccessError{Op: "read", Coordinate: c, Err: err}
	}

	var buf [4]byte
	n, err := f.ReadAt(buf[:w.Bytes()], int64(c.Offset))
	if n != w.Bytes() && (err == nil || err == io.EOF) {
		// Unprivileged readers get a truncated file
		return 0, &PortAccessError{Op: "read", Coordinate: c, Err: fmt.Errorf("short read (%d of %d bytes): %w", n, w.Bytes(), os.ErrPermission)}
	}
	if err != nil && err != io.EOF {
		return 0, &PortAccessError{Op: "read", Coordinate: c, Err: err}
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (s *SysfsPort) Write(c Coordinate, w Width, value uint32) error {
	if err := c.Validate(w); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(c, true)
	if err != nil {
		return &PortAccessError{Op: "write", Coordinate: c, Err: err}
	}
	defer f.Close()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if _, err := f.WriteAt(buf[:w.Bytes()], int64(c.Offset)); err != nil {
		return &PortAccessError{Op: "write", Coordinate: c, Err: err}
	}
	return nil
}

// Close closes every cached config file
func (s *SysfsPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, name)
	}
	return firstErr
}
