package imc

import (
	"fmt"
	"sort"
)

// DecodeFunc turns the extracted bits of a field into its value
type DecodeFunc func(bits uint32) (uint64, error)

// BitField is a contiguous bit range inside a register
type BitField struct {
	Name   string
	Offset uint8
	Width  uint8
	Decode DecodeFunc

	// DependsOn names a presence field in the same register. While that
	// field's bits are zero this field is not decoded and reads as zero.
	DependsOn string
}

// Mask returns the field's mask before shifting
func (f BitField) Mask() uint32 {
	if f.Width >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << f.Width) - 1
}

// Extract returns the raw bits of the field
func (f BitField) Extract(raw uint32) uint32 {
	return (raw >> f.Offset) & f.Mask()
}

// Value extracts and decodes the field
func (f BitField) Value(raw uint32) (uint64, error) {
	return f.Decode(f.Extract(raw))
}

func (f BitField) String() string {
	if f.Width == 1 {
		return fmt.Sprintf("%s[%d]", f.Name, f.Offset)
	}
	return fmt.Sprintf("%s[%d:%d]", f.Name, f.Offset+f.Width-1, f.Offset)
}

// Raw returns the bits unchanged
func Raw(bits uint32) (uint64, error) {
	return uint64(bits), nil
}

// Flag decodes a single bit as 0 or 1
func Flag(bits uint32) (uint64, error) {
	if bits > 1 {
		return 0, fmt.Errorf("flag value %d is not a single bit", bits)
	}
	return uint64(bits), nil
}

// Scaled multiplies the bits by unit
func Scaled(unit uint64) DecodeFunc {
	return func(bits uint32) (uint64, error) {
		return uint64(bits) * unit, nil
	}
}

// Enum maps each defined encoding to its value. Encodings missing from the
// table are reserved and fail to decode.
func Enum(table map[uint32]uint64) DecodeFunc {
	return func(bits uint32) (uint64, error) {
		v, ok := table[bits]
		if !ok {
			return 0, fmt.Errorf("reserved encoding %#x (defined: %s)", bits, encodings(table))
		}
		return v, nil
	}
}

func encodings(table map[uint32]uint64) string {
	keys := make([]int, 0, len(table))
	for k := range table {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%#x", k)
	}
	return s
}
