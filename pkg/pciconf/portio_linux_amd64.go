//go:build linux && amd64

package pciconf

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

func inb(port uint16) uint8
func inw(port uint16) uint16
func inl(port uint16) uint32
func outb(port uint16, v uint8)
func outw(port uint16, v uint16)
func outl(port uint16, v uint32)

var errIOClosed = errors.New("port I/O backend closed")

type ioOp uint8

const (
	opIn ioOp = iota
	opOut
)

type ioRequest struct {
	op    ioOp
	port  uint16
	width Width
	value uint32
	reply chan uint32
}

// PortIO executes IN/OUT instructions on a single OS thread. ioperm(2)
// grants are per thread, so every access is funnelled through the goroutine
// that acquired them.
type PortIO struct {
	reqs chan ioRequest
	done chan struct{}
}

// OpenPortIO acquires I/O permission for the configuration ports and starts
// the worker thread. It fails with a PortAccessError when the process lacks
// CAP_SYS_RAWIO.
func OpenPortIO() (*PortIO, error) {
	p := &PortIO{
		reqs: make(chan ioRequest),
		done: make(chan struct{}),
	}

	ready := make(chan error, 1)
	go p.serve(ready)
	if err := <-ready; err != nil {
		return nil, &PortAccessError{Op: "ioperm", Err: err}
	}
	return p, nil
}

func (p *PortIO) serve(ready chan<- error) {
	// The thread is never unlocked: it carries the ioperm bitmap and must
	// exit with the goroutine rather than return to the scheduler pool.
	runtime.LockOSThread()

	if err := unix.Ioperm(ConfigAddressPort, 8, 1); err != nil {
		ready <- fmt.Errorf("ioperm %#x: %w", ConfigAddressPort, err)
		return
	}
	ready <- nil

	for {
		select {
		case req := <-p.reqs:
			req.reply <- execute(req)
		case <-p.done:
			_ = unix.Ioperm(ConfigAddressPort, 8, 0)
			return
		}
	}
}

func execute(req ioRequest) uint32 {
	if req.op == opOut {
		switch req.width {
		case Width8:
			outb(req.port, uint8(req.value))
		case Width16:
			outw(req.port, uint16(req.value))
		default:
			outl(req.port, req.value)
		}
		return 0
	}
	switch req.width {
	case Width8:
		return uint32(inb(req.port))
	case Width16:
		return uint32(inw(req.port))
	default:
		return inl(req.port)
	}
}

func (p *PortIO) do(op ioOp, port uint16, w Width, v uint32) (uint32, error) {
	req := ioRequest{op: op, port: port, width: w, value: v, reply: make(chan uint32, 1)}
	select {
	case p.reqs <- req:
	case <-p.done:
		return 0, errIOClosed
	}
	return <-req.reply, nil
}

func (p *PortIO) In8(port uint16) (uint8, error) {
	v, err := p.do(opIn, port, Width8, 0)
	return uint8(v), err
}

func (p *PortIO) In16(port uint16) (uint16, error) {
	v, err := p.do(opIn, port, Width16, 0)
	return uint16(v), err
}

func (p *PortIO) In32(port uint16) (uint32, error) {
	return p.do(opIn, port, Width32, 0)
}

func (p *PortIO) Out8(port uint16, v uint8) error {
	_, err := p.do(opOut, port, Width8, uint32(v))
	return err
}

func (p *PortIO) Out16(port uint16, v uint16) error {
	_, err := p.do(opOut, port, Width16, uint32(v))
	return err
}

func (p *PortIO) Out32(port uint16, v uint32) error {
	_, err := p.do(opOut, port, Width32, v)
	return err
}

// Close stops the worker and drops the I/O permission
func (p *PortIO) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}
