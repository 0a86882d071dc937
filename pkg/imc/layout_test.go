package imc

import (
	"errors"
	"testing"

	"github.com/mscrnt/mchconfig/pkg/pciconf"
)

func TestBuiltinMapsValidate(t *testing.T) {
	for _, g := range Generations() {
		t.Run(g.String(), func(t *testing.T) {
			m, err := Lookup(g)
			if err != nil {
				t.Fatalf("Lookup() failed: %v", err)
			}
			if m.Generation != g {
				t.Errorf("map generation = %s, want %s", m.Generation, g)
			}
			if err := m.Validate(); err != nil {
				t.Fatalf("Validate() failed: %v", err)
			}
			if len(m.KnownDeviceIDs) == 0 {
				t.Error("no known device ids")
			}

			for _, r := range m.Registers {
				if r.Space == SpaceConfig {
					if r.Coordinate.Device > 31 || r.Coordinate.Function > 7 {
						t.Errorf("%s: coordinate %s out of bounds", r.Name, r.Coordinate)
					}
					if int(r.Coordinate.Offset)%r.Width.Bytes() != 0 {
						t.Errorf("%s: offset %#x not aligned to %d bits", r.Name, r.Coordinate.Offset, r.Width)
					}
				}
				for _, f := range r.Fields {
					if int(f.Offset)+int(f.Width) > int(r.Width) {
						t.Errorf("%s: field %s exceeds %d-bit register", r.Name, f, r.Width)
					}
				}
			}
		})
	}
}

func TestMapsAreDistinctInstances(t *testing.T) {
	snb, _ := Lookup(SandyBridge)
	ivb, _ := Lookup(IvyBridge)
	if snb == ivb || &snb.Registers[0] == &ivb.Registers[0] {
		t.Fatal("generations share a register map")
	}

	// Sandy Bridge decodes 36 address bits, later parts 39
	snbHigh, _ := snb.Register(RegTOMHigh)
	ivbHigh, _ := ivb.Register(RegTOMHigh)
	snbField, _ := snbHigh.Field(FieldBaseHigh)
	ivbField, _ := ivbHigh.Field(FieldBaseHigh)
	if snbField.Width != 4 || ivbField.Width != 7 {
		t.Errorf("TOM_HI widths = %d/%d, want 4/7", snbField.Width, ivbField.Width)
	}
}

func TestRegisterSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec RegisterSpec
	}{
		{
			name: "field past register width",
			spec: configReg("X", 0x40, field("F", 30, 4, Raw)),
		},
		{
			name: "overlapping fields",
			spec: configReg("X", 0x40, field("A", 0, 8, Raw), field("B", 4, 8, Raw)),
		},
		{
			name: "duplicate field",
			spec: configReg("X", 0x40, field("A", 0, 4, Raw), field("A", 4, 4, Raw)),
		},
		{
			name: "misaligned coordinate",
			spec: configReg("X", 0x42, field("A", 0, 4, Raw)),
		},
		{
			name: "device out of range",
			spec: RegisterSpec{Name: "X", Coordinate: pciconf.Coordinate{Device: 40}, Width: pciconf.Width32, Fields: []BitField{field("A", 0, 1, Flag)}},
		},
		{
			name: "16-bit register with 32-bit field",
			spec: RegisterSpec{Name: "X", Coordinate: hostBridge, Width: pciconf.Width16, Fields: []BitField{field("A", 0, 32, Raw)}},
		},
		{
			name: "missing decoder",
			spec: configReg("X", 0x40, BitField{Name: "A", Width: 1}),
		},
		{
			name: "unknown dependency",
			spec: configReg("X", 0x40, dependent("A", 0, 1, Flag, "NOPE")),
		},
		{
			name: "chained dependency",
			spec: configReg("X", 0x40,
				field("P", 0, 1, Flag),
				dependent("Q", 1, 1, Flag, "P"),
				dependent("R", 2, 1, Flag, "Q"),
			),
		},
		{
			name: "mchbar offset outside window",
			spec: barReg("X", mchbarWindow, field("A", 0, 1, Flag)),
		},
		{
			name: "no fields",
			spec: configReg("X", 0x40),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(mchbarWindow)
			if !errors.Is(err, ErrInvalidMap) {
				t.Fatalf("expected ErrInvalidMap, got %v", err)
			}
		})
	}
}

func TestRegisterMapValidateRequiresDecoderRegisters(t *testing.T) {
	m := sandyBridgeMap()
	// Drop the frequency register
	m.Registers = m.Registers[:len(m.Registers)-1]
	if err := m.Validate(); !errors.Is(err, ErrInvalidMap) {
		t.Fatalf("expected ErrInvalidMap, got %v", err)
	}

	m = sandyBridgeMap()
	m.Channels[1].Index = 5
	if err := m.Validate(); !errors.Is(err, ErrInvalidMap) {
		t.Fatalf("expected ErrInvalidMap for channel order, got %v", err)
	}

	m = sandyBridgeMap()
	m.Registers = append(m.Registers, m.Registers[0])
	if err := m.Validate(); !errors.Is(err, ErrInvalidMap) {
		t.Fatalf("expected ErrInvalidMap for duplicate register, got %v", err)
	}
}
