// Package smbioscheck cross-checks a decoded memory controller snapshot
// against the memory devices the firmware reports in SMBIOS.
package smbioscheck

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/digitalocean/go-smbios/smbios"
)

const typeMemoryDevice = 17

// Module is one populated SMBIOS memory device (type 17)
type Module struct {
	Locator     string `json:"locator"`
	BankLocator string `json:"bank_locator,omitempty"`
	Size        uint64 `json:"size"`
	Ranks       int    `json:"ranks,omitempty"`
	SpeedMTs    int    `json:"speed_mts,omitempty"`
	ECC         bool   `json:"ecc"`
}

// Read decodes the memory devices of the running system
func Read() ([]Module, error) {
	rc, _, err := smbios.Stream()
	if err != nil {
		return nil, fmt.Errorf("failed to open SMBIOS stream: %w", err)
	}
	defer rc.Close()

	return Decode(rc)
}

// Decode reads the memory devices from a raw structure table, such as a
// copy of /sys/firmware/dmi/tables/DMI
func Decode(r io.Reader) ([]Module, error) {
	ss, err := smbios.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode SMBIOS structures: %w", err)
	}
	return Modules(ss)
}

// Modules extracts every populated memory device. Empty sockets and
// devices of unknown size are skipped.
func Modules(ss []*smbios.Structure) ([]Module, error) {
	var out []Module
	for _, s := range ss {
		if s.Header.Type != typeMemoryDevice {
			continue
		}
		m, ok, err := parseMemoryDevice(s)
		if err != nil {
			return nil, fmt.Errorf("memory device handle %#04x: %w", s.Header.Handle, err)
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Offsets into Formatted, which starts after the 4 byte header
const (
	offTotalWidth  = 0x08 - 4
	offDataWidth   = 0x0A - 4
	offSize        = 0x0C - 4
	offLocator     = 0x10 - 4
	offBank        = 0x11 - 4
	offSpeed       = 0x15 - 4
	offAttributes  = 0x1B - 4
	offExtSize     = 0x1C - 4
	offConfigSpeed = 0x20 - 4
)

func parseMemoryDevice(s *smbios.Structure) (Module, bool, error) {
	f := s.Formatted
	if len(f) < offLocator+2 {
		return Module{}, false, fmt.Errorf("structure too short (%d bytes)", len(f))
	}

	raw := binary.LittleEndian.Uint16(f[offSize : offSize+2])
	if raw == 0 || raw == 0xFFFF {
		return Module{}, false, nil
	}

	var size uint64
	switch {
	case raw == 0x7FFF && len(f) >= offExtSize+4:
		size = uint64(binary.LittleEndian.Uint32(f[offExtSize:offExtSize+4])&0x7FFFFFFF) << 20
	case raw&0x8000 != 0:
		size = uint64(raw&0x7FFF) << 10
	default:
		size = uint64(raw) << 20
	}

	m := Module{
		Locator:     stringAt(s, f[offLocator]),
		BankLocator: stringAt(s, f[offBank]),
		Size:        size,
	}

	total := binary.LittleEndian.Uint16(f[offTotalWidth : offTotalWidth+2])
	data := binary.LittleEndian.Uint16(f[offDataWidth : offDataWidth+2])
	if total != 0xFFFF && data != 0xFFFF && total > data {
		m.ECC = true
	}

	if len(f) >= offSpeed+2 {
		m.SpeedMTs = int(binary.LittleEndian.Uint16(f[offSpeed : offSpeed+2]))
	}
	if len(f) >= offConfigSpeed+2 {
		if cfg := int(binary.LittleEndian.Uint16(f[offConfigSpeed : offConfigSpeed+2])); cfg != 0 && cfg != 0xFFFF {
			m.SpeedMTs = cfg
		}
	}
	if len(f) > offAttributes {
		m.Ranks = int(f[offAttributes] & 0x0F)
	}
	return m, true, nil
}

// stringAt resolves a 1-based string reference
func stringAt(s *smbios.Structure, idx byte) string {
	if idx == 0 || int(idx) > len(s.Strings) {
		return ""
	}
	return s.Strings[idx-1]
}
