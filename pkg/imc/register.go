package imc

import (
	"errors"
	"fmt"

	"github.com/mscrnt/mchconfig/pkg/pciconf"
)

// ErrInvalidMap is wrapped by every register map validation failure
var ErrInvalidMap = errors.New("invalid register map")

// Space says where a register lives
type Space int

const (
	// SpaceConfig registers are read through PCI configuration space
	SpaceConfig Space = iota
	// SpaceMCHBAR registers are read from the memory mapped MCHBAR window
	SpaceMCHBAR
)

func (s Space) String() string {
	switch s {
	case SpaceConfig:
		return "config"
	case SpaceMCHBAR:
		return "mchbar"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

// RegisterSpec describes one register and its bit fields
type RegisterSpec struct {
	Name  string
	Space Space
	// Coordinate locates config space registers
	Coordinate pciconf.Coordinate
	// Offset locates MCHBAR registers relative to the window base
	Offset uint32
	Width  pciconf.Width
	Fields []BitField
}

// Field looks up a field by name
func (r *RegisterSpec) Field(name string) (BitField, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return BitField{}, false
}

// Location formats where the register is read from
func (r *RegisterSpec) Location() string {
	if r.Space == SpaceMCHBAR {
		return fmt.Sprintf("MCHBAR+%#04x", r.Offset)
	}
	return r.Coordinate.String()
}

// Validate checks the register's placement and field layout
func (r *RegisterSpec) Validate(barSize int) error {
	if r.Name == "" {
		return fmt.Errorf("%w: register without a name", ErrInvalidMap)
	}
	if !r.Width.Valid() {
		return fmt.Errorf("%w: %s: width %d", ErrInvalidMap, r.Name, r.Width)
	}

	switch r.Space {
	case SpaceConfig:
		if err := r.Coordinate.Validate(r.Width); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidMap, r.Name, err)
		}
	case SpaceMCHBAR:
		if r.Width != pciconf.Width32 {
			return fmt.Errorf("%w: %s: MCHBAR registers are read as dwords", ErrInvalidMap, r.Name)
		}
		if r.Offset&3 != 0 || uint64(r.Offset)+4 > uint64(barSize) {
			return fmt.Errorf("%w: %s: offset %#x outside %#x byte window", ErrInvalidMap, r.Name, r.Offset, barSize)
		}
	default:
		return fmt.Errorf("%w: %s: %s", ErrInvalidMap, r.Name, r.Space)
	}

	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidMap, r.Name)
	}

	var used uint32
	names := make(map[string]BitField, len(r.Fields))
	for _, f := range r.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: unnamed field", ErrInvalidMap, r.Name)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %s", ErrInvalidMap, r.Name, f.Name)
		}
		if f.Width == 0 || int(f.Offset)+int(f.Width) > int(r.Width) {
			return fmt.Errorf("%w: %s: field %s outside %d-bit register", ErrInvalidMap, r.Name, f, r.Width)
		}
		if f.Decode == nil {
			return fmt.Errorf("%w: %s: field %s has no decoder", ErrInvalidMap, r.Name, f.Name)
		}
		bits := f.Mask() << f.Offset
		if used&bits != 0 {
			return fmt.Errorf("%w: %s: field %s overlaps another field", ErrInvalidMap, r.Name, f)
		}
		used |= bits
		names[f.Name] = f
	}

	for _, f := range r.Fields {
		if f.DependsOn == "" {
			continue
		}
		dep, ok := names[f.DependsOn]
		if !ok || dep.Name == f.Name {
			return fmt.Errorf("%w: %s: field %s depends on unknown field %q", ErrInvalidMap, r.Name, f.Name, f.DependsOn)
		}
		if dep.DependsOn != "" {
			return fmt.Errorf("%w: %s: field %s depends on dependent field %s", ErrInvalidMap, r.Name, f.Name, dep.Name)
		}
	}
	return nil
}

// ChannelSpec assigns a DIMM organization register to a channel
type ChannelSpec struct {
	Index    int
	Register string
}

// BarSpec names the config registers holding the MCHBAR base
type BarSpec struct {
	Low  string
	High string
	Size int
}

// RegisterMap is the complete register layout of one generation. Maps are
// built once and never modified.
type RegisterMap struct {
	Generation     Generation
	Name           string
	KnownDeviceIDs []uint16
	Registers      []RegisterSpec
	Channels       []ChannelSpec
	MCHBAR         BarSpec
}

// Register looks up a register by name
func (m *RegisterMap) Register(name string) (*RegisterSpec, bool) {
	for i := range m.Registers {
		if m.Registers[i].Name == name {
			return &m.Registers[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of m. Decode functions are shared.
func (m *RegisterMap) Clone() *RegisterMap {
	c := *m
	c.KnownDeviceIDs = append([]uint16(nil), m.KnownDeviceIDs...)
	c.Channels = append([]ChannelSpec(nil), m.Channels...)
	c.Registers = make([]RegisterSpec, len(m.Registers))
	for i, r := range m.Registers {
		r.Fields = append([]BitField(nil), r.Fields...)
		c.Registers[i] = r
	}
	return &c
}

// KnownDevice reports whether did is a host bridge this layout was checked against
func (m *RegisterMap) KnownDevice(did uint16) bool {
	for _, known := range m.KnownDeviceIDs {
		if known == did {
			return true
		}
	}
	return false
}

// requiredFields lists every register and field the decoder reads by name
var requiredFields = map[string][]string{
	RegHostBridgeID: {FieldVendorID, FieldDeviceID},
	RegCapID0A:      {FieldECCDisable},
	RegBIOSData:     {FieldFrequency},
	RegTOLUD:        {FieldLock, FieldBase},
	RegTSEGMB:       {FieldLock, FieldBase},
	RegBDSM:         {FieldLock, FieldBase},
	RegBGSM:         {FieldLock, FieldBase},
	RegTOMLow:       {FieldLock, FieldBaseLow},
	RegTOMHigh:      {FieldBaseHigh},
	RegTOUUDLow:     {FieldLock, FieldBaseLow},
	RegTOUUDHigh:    {FieldBaseHigh},
	RegRemapBaseLow: {FieldLock, FieldBaseLow},
	RegRemapBaseHi:  {FieldBaseHigh},
	RegRemapLimLow:  {FieldLock, FieldBaseLow},
	RegRemapLimHi:   {FieldBaseHigh},
	RegPCIEXBARLow:  {FieldEnable, FieldLength, FieldBaseLow},
	RegPCIEXBARHigh: {FieldBaseHigh},
	RegDMIBARLow:    {FieldEnable, FieldBaseLow},
	RegDMIBARHigh:   {FieldBaseHigh},
}

var channelFields = []string{
	FieldDIMMASize, FieldDIMMBSize, FieldDIMMASelect, FieldDIMMARanks, FieldDIMMBRanks,
	FieldDIMMAWidth, FieldDIMMBWidth, FieldRankInterleave, FieldEnhancedInterleave, FieldECC,
}

// Validate checks every register plus the names the decoder depends on
func (m *RegisterMap) Validate() error {
	if !m.Generation.Supported() {
		return fmt.Errorf("%w: map for %s", ErrInvalidMap, m.Generation)
	}
	if m.MCHBAR.Size <= 0 {
		return fmt.Errorf("%w: %s: MCHBAR size %d", ErrInvalidMap, m.Generation, m.MCHBAR.Size)
	}

	seen := make(map[string]bool, len(m.Registers))
	for i := range m.Registers {
		r := &m.Registers[i]
		if seen[r.Name] {
			return fmt.Errorf("%w: %s: duplicate register %s", ErrInvalidMap, m.Generation, r.Name)
		}
		seen[r.Name] = true
		if err := r.Validate(m.MCHBAR.Size); err != nil {
			return fmt.Errorf("%s: %w", m.Generation, err)
		}
	}

	need := func(reg string, space Space, fields ...string) error {
		r, ok := m.Register(reg)
		if !ok {
			return fmt.Errorf("%w: %s: missing register %s", ErrInvalidMap, m.Generation, reg)
		}
		if r.Space != space {
			return fmt.Errorf("%w: %s: register %s must be in %s space", ErrInvalidMap, m.Generation, reg, space)
		}
		for _, name := range fields {
			if _, ok := r.Field(name); !ok {
				return fmt.Errorf("%w: %s: register %s lacks field %s", ErrInvalidMap, m.Generation, reg, name)
			}
		}
		return nil
	}

	if err := need(m.MCHBAR.Low, SpaceConfig, FieldEnable, FieldBaseLow); err != nil {
		return err
	}
	if err := need(m.MCHBAR.High, SpaceConfig, FieldBaseHigh); err != nil {
		return err
	}
	for reg, fields := range requiredFields {
		space := SpaceConfig
		if reg == RegBIOSData {
			space = SpaceMCHBAR
		}
		if err := need(reg, space, fields...); err != nil {
			return err
		}
	}

	if len(m.Channels) == 0 {
		return fmt.Errorf("%w: %s: no channels", ErrInvalidMap, m.Generation)
	}
	for i, ch := range m.Channels {
		if ch.Index != i {
			return fmt.Errorf("%w: %s: channel %d declared at position %d", ErrInvalidMap, m.Generation, ch.Index, i)
		}
		if err := need(ch.Register, SpaceMCHBAR, channelFields...); err != nil {
			return err
		}
	}
	return nil
}
