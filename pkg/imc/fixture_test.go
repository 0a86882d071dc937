package imc

import (
	"sync"

	"github.com/mscrnt/mchconfig/pkg/cpuident"
	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

const testMCHBAR = 0xFED10000

var (
	sandyBridgeCPU = cpuident.Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x2A}
	haswellCPU     = cpuident.Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x3C}
	amdCPU         = cpuident.Static{VendorID: "AuthenticAMD", FamilyID: 0x17, ModelID: 0x71}
)

// machine is a host bridge config space plus the MCHBAR window behind it
type machine struct {
	config *pciconf.Image
	mem    *physmem.Image
}

// newMachine builds a desktop with one dual rank x8 4 GiB DIMM in channel
// 0, channel 1 empty, DDR3-1600 and ECC fused off
func newMachine(deviceID uint16) *machine {
	hb := pciconf.BDF(0, 0, 0)
	cfg := pciconf.NewImage()
	set := func(off uint8, v uint32) { cfg.Set(hb.At(off), pciconf.Width32, v) }

	set(0x00, uint32(deviceID)<<16|0x8086)
	set(0x48, testMCHBAR|1)
	set(0x60, 0xF8000001)
	set(0x68, 0xFED18001)
	set(0x90, 0x00000001)
	set(0x94, 0x1)
	set(0x98, 0x20500001)
	set(0x9C, 0x1)
	set(0xA0, 0x00000001)
	set(0xA4, 0x1)
	set(0xA8, 0x20600001)
	set(0xAC, 0x1)
	set(0xB0, 0xDBA00001)
	set(0xB4, 0xDB800001)
	set(0xB8, 0xDB000001)
	set(0xBC, 0xDFA00001)
	set(0xE4, 1<<25)

	mem := physmem.NewImage()
	mem.Set(testMCHBAR+0x5004, 0x00020010)
	mem.Set(testMCHBAR+0x5008, 0)
	mem.Set(testMCHBAR+0x5E04, 6)

	return &machine{config: cfg, mem: mem}
}

func (m *machine) setConfig(off uint8, v uint32) {
	m.config.Set(pciconf.BDF(0, 0, 0).At(off), pciconf.Width32, v)
}

func (m *machine) setMCHBAR(off uint32, v uint32) {
	m.mem.Set(testMCHBAR+uint64(off), v)
}

func expectedAddressMap() AddressMap {
	return AddressMap{
		MCHBAR:     Bar{Base: testMCHBAR, Size: 0x8000, Enabled: true},
		PCIEXBAR:   Bar{Base: 0xF8000000, Size: 256 * mib, Enabled: true},
		DMIBAR:     Bar{Base: 0xFED18000, Enabled: true},
		TOM:        Boundary{Base: 0x100000000, Locked: true},
		TOUUD:      Boundary{Base: 0x120600000, Locked: true},
		TOLUD:      Boundary{Base: 0xDFA00000, Locked: true},
		RemapBase:  Boundary{Base: 0x100000000, Locked: true},
		RemapLimit: Boundary{Base: 0x120500000, Locked: true},
		TSEGMB:     Boundary{Base: 0xDB000000, Locked: true},
		BDSM:       Boundary{Base: 0xDBA00000, Locked: true},
		BGSM:       Boundary{Base: 0xDB800000, Locked: true},
	}
}

// spyPort counts reads and fails them on demand
type spyPort struct {
	mu     sync.Mutex
	inner  pciconf.ConfigSpacePort
	reads  int
	failAt int
	err    error
}

func (s *spyPort) Read(c pciconf.Coordinate, w pciconf.Width) (uint32, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	if s.err != nil && n >= s.failAt {
		return 0, s.err
	}
	if s.inner == nil {
		return 0xFFFFFFFF, nil
	}
	return s.inner.Read(c, w)
}

func (s *spyPort) Write(c pciconf.Coordinate, w pciconf.Width, v uint32) error {
	return s.inner.Write(c, w, v)
}

func (s *spyPort) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
