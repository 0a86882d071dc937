package smbioscheck

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/digitalocean/go-smbios/smbios"
	"github.com/google/go-cmp/cmp"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// memoryDevice builds an SMBIOS 2.8 style type 17 structure
func memoryDevice(handle uint16, sizeMiB uint16, ranks byte, speed uint16, ecc bool, locator string) *smbios.Structure {
	f := make([]byte, 0x28-4)
	total, data := uint16(64), uint16(64)
	if ecc {
		total = 72
	}
	binary.LittleEndian.PutUint16(f[offTotalWidth:], total)
	binary.LittleEndian.PutUint16(f[offDataWidth:], data)
	binary.LittleEndian.PutUint16(f[offSize:], sizeMiB)
	f[offLocator] = 1
	f[offBank] = 2
	binary.LittleEndian.PutUint16(f[offSpeed:], speed)
	f[offAttributes] = ranks
	binary.LittleEndian.PutUint16(f[offConfigSpeed:], speed)

	return &smbios.Structure{
		Header:    smbios.Header{Type: typeMemoryDevice, Length: 0x28, Handle: handle},
		Formatted: f,
		Strings:   []string{locator, "BANK 0"},
	}
}

func TestModules(t *testing.T) {
	big := memoryDevice(0x0043, 0x7FFF, 2, 1600, false, "ChannelB-DIMM0")
	binary.LittleEndian.PutUint32(big.Formatted[offExtSize:], 32768)

	ss := []*smbios.Structure{
		{Header: smbios.Header{Type: 0, Length: 4}},
		memoryDevice(0x0040, 4096, 2, 1600, false, "ChannelA-DIMM0"),
		memoryDevice(0x0041, 0, 0, 0, false, "ChannelA-DIMM1"),
		memoryDevice(0x0042, 0x8000|512, 1, 0, true, "SODIMM"),
		big,
	}

	got, err := Modules(ss)
	if err != nil {
		t.Fatalf("Modules() failed: %v", err)
	}

	want := []Module{
		{Locator: "ChannelA-DIMM0", BankLocator: "BANK 0", Size: 4 << 30, Ranks: 2, SpeedMTs: 1600},
		{Locator: "SODIMM", BankLocator: "BANK 0", Size: 512 << 10, Ranks: 1, ECC: true},
		{Locator: "ChannelB-DIMM0", BankLocator: "BANK 0", Size: 32 << 30, Ranks: 2, SpeedMTs: 1600},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected modules (-want +got):\n%s", diff)
	}
}

// encode serializes structures the way firmware lays out the table
func encode(ss ...*smbios.Structure) []byte {
	var b bytes.Buffer
	for _, s := range ss {
		b.WriteByte(s.Header.Type)
		b.WriteByte(s.Header.Length)
		_ = binary.Write(&b, binary.LittleEndian, s.Header.Handle)
		b.Write(s.Formatted)
		if len(s.Strings) == 0 {
			b.Write([]byte{0, 0})
			continue
		}
		for _, str := range s.Strings {
			b.WriteString(str)
			b.WriteByte(0)
		}
		b.WriteByte(0)
	}
	return b.Bytes()
}

func TestDecodeTable(t *testing.T) {
	table := encode(
		memoryDevice(0x0040, 4096, 2, 1600, false, "ChannelA-DIMM0"),
		memoryDevice(0x0041, 0, 0, 0, false, "ChannelA-DIMM1"),
		&smbios.Structure{Header: smbios.Header{Type: 127, Length: 4, Handle: 0xFEFF}},
	)

	got, err := Decode(bytes.NewReader(table))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	want := []Module{
		{Locator: "ChannelA-DIMM0", BankLocator: "BANK 0", Size: 4 << 30, Ranks: 2, SpeedMTs: 1600},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected modules (-want +got):\n%s", diff)
	}

	if _, err := Decode(bytes.NewReader(table[:10])); err == nil {
		t.Error("expected error for a truncated table")
	}
}

func TestModulesShortStructure(t *testing.T) {
	ss := []*smbios.Structure{{
		Header:    smbios.Header{Type: typeMemoryDevice, Length: 8},
		Formatted: []byte{0, 0, 0, 0},
	}}
	if _, err := Modules(ss); err == nil {
		t.Fatal("expected error for truncated memory device")
	}
}

func snapshot() *imc.Config {
	return &imc.Config{
		Generation:   imc.SandyBridge,
		ChannelCount: 2,
		Channels: []imc.Channel{
			{
				Index: 0, Populated: true, RankCount: 2, DeviceWidth: 8, CapacityPerRank: 2 << 30,
				DIMMs: []imc.DIMM{{Label: "A", Size: 4 << 30, Ranks: 2, DeviceWidth: 8}},
			},
			{Index: 1},
		},
		Frequency: imc.Frequency{Ratio: 6, ClockMHz: 800, DataRateMTs: 1600},
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		modules    []Module
		mismatches int
	}{
		{
			name:    "agree",
			modules: []Module{{Locator: "DIMM0", Size: 4 << 30, Ranks: 2, SpeedMTs: 1600}},
		},
		{
			name:    "firmware rounds speed",
			modules: []Module{{Locator: "DIMM0", Size: 4 << 30, Ranks: 2, SpeedMTs: 1600 + speedTolerance}},
		},
		{
			name:    "ranks unknown",
			modules: []Module{{Locator: "DIMM0", Size: 4 << 30}},
		},
		{
			name:       "size differs",
			modules:    []Module{{Locator: "DIMM0", Size: 8 << 30, Ranks: 2}},
			mismatches: 2,
		},
		{
			name: "extra module",
			modules: []Module{
				{Locator: "DIMM0", Size: 4 << 30, Ranks: 2},
				{Locator: "DIMM1", Size: 4 << 30, Ranks: 2},
			},
			mismatches: 2,
		},
		{
			name:       "speed differs",
			modules:    []Module{{Locator: "DIMM0", Size: 4 << 30, Ranks: 2, SpeedMTs: 1333}},
			mismatches: 1,
		},
		{
			name:       "ecc differs",
			modules:    []Module{{Locator: "DIMM0", Size: 4 << 30, Ranks: 2, ECC: true}},
			mismatches: 1,
		},
		{
			name:       "rank count differs",
			modules:    []Module{{Locator: "DIMM0", Size: 4 << 30, Ranks: 1}},
			mismatches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(snapshot(), tt.modules)
			if len(r.Mismatches) != tt.mismatches {
				t.Fatalf("got %d mismatches, want %d: %v", len(r.Mismatches), tt.mismatches, r.Mismatches)
			}
			if r.OK() != (tt.mismatches == 0) {
				t.Errorf("OK() = %v", r.OK())
			}
			if r.DecodedTotal != 4<<30 {
				t.Errorf("DecodedTotal = %d", r.DecodedTotal)
			}
		})
	}
}
