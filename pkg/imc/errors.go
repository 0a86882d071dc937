package imc

import (
	"fmt"

	"github.com/mscrnt/mchconfig/pkg/pciconf"
)

// PortAccessError is returned by ports when I/O is denied or unavailable
type PortAccessError = pciconf.PortAccessError

// UnsupportedPlatformError means no register map applies to this
// processor. No register was read.
type UnsupportedPlatformError struct {
	Vendor string
	Family uint32
	Model  uint32
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s family %#x model %#x has no known memory controller layout",
		e.Vendor, e.Family, e.Model)
}

// DecodeError reports a failed register read or a register value that
// cannot be interpreted
type DecodeError struct {
	Register string
	Field    string
	Raw      uint32
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	where := e.Register
	if e.Field != "" {
		where += "." + e.Field
	}
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("failed to decode %s: %s: %v", where, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to decode %s: %v", where, e.Err)
	default:
		return fmt.Sprintf("failed to decode %s (raw %#08x): %s", where, e.Raw, e.Reason)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }
