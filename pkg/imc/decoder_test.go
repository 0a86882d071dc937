package imc

import (
	"bytes"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

func quietDecoder() *Decoder {
	return NewDecoder(log.New(&bytes.Buffer{}, "", 0), nil)
}

func TestDecodeSandyBridgeDesktop(t *testing.T) {
	mach := newMachine(0x0100)
	m, _ := Lookup(SandyBridge)

	got, err := quietDecoder().Decode(m, mach.config, mach.mem)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	want := &Config{
		Generation:   SandyBridge,
		VendorID:     0x8086,
		DeviceID:     0x0100,
		KnownDevice:  true,
		ChannelCount: 2,
		Channels: []Channel{
			{
				Index:           0,
				Populated:       true,
				RankCount:       2,
				DeviceWidth:     8,
				CapacityPerRank: 2 * gib,
				DIMMs: []DIMM{
					{Label: "A", Slot: 0, Size: 4 * gib, Ranks: 2, DeviceWidth: 8},
				},
			},
			{Index: 1},
		},
		Frequency:  Frequency{Ratio: 6, ClockMHz: 800, DataRateMTs: 1600},
		ECCCapable: false,
		AddressMap: expectedAddressMap(),
	}

	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Config{}, "Registers")); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}

	if len(got.Registers) != len(m.Registers) {
		t.Errorf("captured %d registers, want %d", len(got.Registers), len(m.Registers))
	}
	if mach.mem.Maps[0] != testMCHBAR || len(mach.mem.Maps) != 1 {
		t.Errorf("MCHBAR mapped at %#x, want one map at %#x", mach.mem.Maps, testMCHBAR)
	}
}

func TestDecodeReadsEachConfigRegisterOnce(t *testing.T) {
	mach := newMachine(0x0100)
	m, _ := Lookup(SandyBridge)
	spy := &spyPort{inner: mach.config}

	if _, err := quietDecoder().Decode(m, spy, mach.mem); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	n := 0
	for _, r := range m.Registers {
		if r.Space == SpaceConfig {
			n++
		}
	}
	if spy.Reads() != n {
		t.Errorf("port reads = %d, want %d", spy.Reads(), n)
	}
}

func TestDecodeTwoDIMMChannel(t *testing.T) {
	mach := newMachine(0x0C00)
	// Channel 1: DIMM A 8 GiB dual rank x8 in slot 1, DIMM B 4 GiB single rank x16
	mach.setMCHBAR(0x5008, 0x20|0x10<<8|1<<16|1<<17|1<<20|1<<21)
	m, _ := Lookup(Haswell)

	got, err := quietDecoder().Decode(m, mach.config, mach.mem)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	want := Channel{
		Index:           1,
		Populated:       true,
		RankCount:       3,
		DeviceWidth:     8,
		CapacityPerRank: 4 * gib,
		RankInterleave:  true,
		DIMMs: []DIMM{
			{Label: "A", Slot: 1, Size: 8 * gib, Ranks: 2, DeviceWidth: 8},
			{Label: "B", Slot: 0, Size: 4 * gib, Ranks: 1, DeviceWidth: 16},
		},
	}
	if diff := cmp.Diff(want, got.Channels[1]); diff != "" {
		t.Fatalf("unexpected channel (-want +got):\n%s", diff)
	}
	if got.TotalCapacity() != 16*gib {
		t.Errorf("TotalCapacity() = %d, want %d", got.TotalCapacity(), 16*gib)
	}
	if got.PopulatedChannels() != 2 {
		t.Errorf("PopulatedChannels() = %d, want 2", got.PopulatedChannels())
	}
}

// Every dependent field reads as its absent sentinel when the DIMM it
// describes has no size, whatever garbage its bits hold.
func TestDecodeAbsentDIMMUsesSentinels(t *testing.T) {
	garbage := uint32(1<<17 | 1<<18 | 1<<19 | 1<<20 | 3<<24)

	for _, g := range Generations() {
		t.Run(g.String(), func(t *testing.T) {
			m, _ := Lookup(g)
			mach := newMachine(m.KnownDeviceIDs[0])
			mach.setConfig(0xE4, 0)
			mach.setMCHBAR(0x5004, garbage)
			mach.setMCHBAR(0x5008, garbage)

			got, err := quietDecoder().Decode(m, mach.config, mach.mem)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			for _, ch := range got.Channels {
				want := Channel{Index: ch.Index}
				if diff := cmp.Diff(want, ch); diff != "" {
					t.Errorf("channel %d not absent (-want +got):\n%s", ch.Index, diff)
				}
			}

			for _, r := range got.Registers {
				if r.Name != RegMADDIMMCh0 && r.Name != RegMADDIMMCh1 {
					continue
				}
				spec, _ := m.Register(r.Name)
				for _, f := range spec.Fields {
					if f.DependsOn != "" && r.Fields[f.Name] != 0 {
						t.Errorf("%s.%s = %d, want absent sentinel 0", r.Name, f.Name, r.Fields[f.Name])
					}
				}
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*machine)
		register string
		reason   string
	}{
		{
			name:     "no host bridge",
			mutate:   func(m *machine) { m.setConfig(0x00, 0xFFFFFFFF) },
			register: RegHostBridgeID,
			reason:   "no device",
		},
		{
			name:     "not intel",
			mutate:   func(m *machine) { m.setConfig(0x00, 0x14501022) },
			register: RegHostBridgeID,
			reason:   "not Intel",
		},
		{
			name:     "mchbar disabled",
			mutate:   func(m *machine) { m.setConfig(0x48, testMCHBAR) },
			register: RegMCHBARLow,
			reason:   "disabled",
		},
		{
			name:     "reserved pciexbar length",
			mutate:   func(m *machine) { m.setConfig(0x60, 0xF8000007) },
			register: RegPCIEXBARLow,
		},
		{
			name:     "ecc on fused part",
			mutate:   func(m *machine) { m.setMCHBAR(0x5004, 0x03020010) },
			register: RegMADDIMMCh0,
			reason:   "fused off",
		},
		{
			name:     "zero clock with populated channel",
			mutate:   func(m *machine) { m.setMCHBAR(0x5E04, 0) },
			register: RegBIOSData,
			reason:   "ratio is zero",
		},
		{
			name:     "dimm b larger than a",
			mutate:   func(m *machine) { m.setMCHBAR(0x5008, 0x0800) },
			register: RegMADDIMMCh1,
			reason:   "larger",
		},
	}

	m, _ := Lookup(SandyBridge)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mach := newMachine(0x0100)
			tt.mutate(mach)

			cfg, err := quietDecoder().Decode(m, mach.config, mach.mem)
			if cfg != nil {
				t.Fatalf("expected no config, got %+v", cfg)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %T %v", err, err)
			}
			if de.Register != tt.register {
				t.Errorf("register = %s, want %s", de.Register, tt.register)
			}
			if !strings.Contains(de.Error(), tt.reason) {
				t.Errorf("error %q does not mention %q", de.Error(), tt.reason)
			}
		})
	}
}

func TestDecodeECCEnabled(t *testing.T) {
	mach := newMachine(0x0108)
	mach.setConfig(0xE4, 0)
	mach.setMCHBAR(0x5004, 0x03020010)
	m, _ := Lookup(SandyBridge)

	got, err := quietDecoder().Decode(m, mach.config, mach.mem)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if !got.ECCCapable || !got.Channels[0].ECCEnabled {
		t.Errorf("ECCCapable=%v ECCEnabled=%v, want both true", got.ECCCapable, got.Channels[0].ECCEnabled)
	}
	if got.Channels[1].ECCEnabled {
		t.Error("empty channel reports ECC")
	}
}

func TestDecodePortFailure(t *testing.T) {
	mach := newMachine(0x0100)
	m, _ := Lookup(SandyBridge)

	for _, failAt := range []int{1, 5} {
		denied := &pciconf.PortAccessError{Op: "read", Err: os.ErrPermission}
		spy := &spyPort{inner: mach.config, failAt: failAt, err: denied}

		cfg, err := quietDecoder().Decode(m, spy, mach.mem)
		if cfg != nil {
			t.Fatalf("failAt %d: expected no config, got %+v", failAt, cfg)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("failAt %d: expected DecodeError, got %T %v", failAt, err, err)
		}
		var pae *PortAccessError
		if !errors.As(err, &pae) || !pae.IsPermission() {
			t.Fatalf("failAt %d: expected wrapped permission PortAccessError, got %v", failAt, err)
		}
		if spy.Reads() != failAt {
			t.Errorf("failAt %d: decoding continued for %d reads", failAt, spy.Reads())
		}
	}
}

type failingMapper struct{}

func (failingMapper) Map(base uint64, size int) (physmem.Window, error) {
	return nil, &physmem.MapError{Base: base, Size: size, Err: os.ErrPermission}
}

func TestDecodeMapFailure(t *testing.T) {
	mach := newMachine(0x0100)
	m, _ := Lookup(SandyBridge)

	_, err := quietDecoder().Decode(m, mach.config, failingMapper{})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected permission cause, got %v", err)
	}
}

func TestDecodeUnknownDeviceWarns(t *testing.T) {
	mach := newMachine(0x0999)
	m, _ := Lookup(SandyBridge)
	var buf bytes.Buffer

	got, err := NewDecoder(log.New(&buf, "[imc] ", 0), nil).Decode(m, mach.config, mach.mem)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got.KnownDevice {
		t.Error("KnownDevice = true for unlisted device id")
	}
	if !strings.Contains(buf.String(), "0x0999") {
		t.Errorf("expected warning naming the device id, got %q", buf.String())
	}
}

func TestDecodeHighOrderRankInterleave(t *testing.T) {
	// Bit 26 of MAD_DIMM is only defined from Haswell on
	tests := []struct {
		g    Generation
		want bool
	}{
		{SandyBridge, false},
		{IvyBridge, false},
		{Haswell, true},
		{Broadwell, true},
	}

	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			m, _ := Lookup(tt.g)
			mach := newMachine(m.KnownDeviceIDs[0])
			mach.setMCHBAR(0x5004, 0x00020010|1<<26)

			got, err := quietDecoder().Decode(m, mach.config, mach.mem)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if got.Channels[0].HighOrderRankInterleave != tt.want {
				t.Errorf("channel 0 HORI = %v, want %v", got.Channels[0].HighOrderRankInterleave, tt.want)
			}
			if got.Channels[1].HighOrderRankInterleave {
				t.Error("channel 1 HORI set without the bit")
			}
		})
	}
}

func TestDecodeRejectsIncompleteMap(t *testing.T) {
	tests := []struct {
		name string
		m    *RegisterMap
	}{
		{
			name: "capability register only",
			m:    &RegisterMap{Generation: SandyBridge, Registers: []RegisterSpec{capID0A()}},
		},
		{
			name: "missing clock register",
			m: func() *RegisterMap {
				m := sandyBridgeMap()
				m.Registers = m.Registers[:len(m.Registers)-1]
				return m
			}(),
		},
		{
			name: "channel without its register",
			m: func() *RegisterMap {
				m := haswellMap()
				m.Channels = append(m.Channels, ChannelSpec{Index: 2, Register: "MAD_DIMM_CH2"})
				return m
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mach := newMachine(0x0100)
			spy := &spyPort{inner: mach.config}

			cfg, err := quietDecoder().Decode(tt.m, spy, mach.mem)
			if cfg != nil {
				t.Fatalf("expected no config, got %+v", cfg)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %T %v", err, err)
			}
			if !errors.Is(err, ErrInvalidMap) {
				t.Errorf("expected ErrInvalidMap, got %v", err)
			}
			if spy.Reads() != 0 {
				t.Errorf("port reads = %d, want 0", spy.Reads())
			}
		})
	}
}
