package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mscrnt/mchconfig/pkg/cpuident"
	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

// fixtureFile is a captured machine: the processor identity, an lspci -xxx
// dump of config space and the MCHBAR dwords the decoder reads
type fixtureFile struct {
	cpuident.Static `yaml:",inline"`

	Lspci      string            `yaml:"lspci"`
	MCHBARBase uint64            `yaml:"mchbar_base,omitempty"`
	MCHBAR     map[uint32]uint32 `yaml:"mchbar"`
}

type fixture struct {
	identity cpuident.Static
	config   *pciconf.Image
	memory   *physmem.Image
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the user's replay fixture
	if err != nil {
		return nil, fmt.Errorf("failed to read replay fixture: %w", err)
	}

	var ff fixtureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse replay fixture %s: %w", path, err)
	}
	if ff.VendorID == "" {
		return nil, fmt.Errorf("replay fixture %s: vendor is required", path)
	}

	img, err := pciconf.ParseLspci(strings.NewReader(ff.Lspci))
	if err != nil {
		return nil, fmt.Errorf("replay fixture %s: %w", path, err)
	}

	base := ff.MCHBARBase
	if base == 0 {
		base, err = mchbarBase(img)
		if err != nil {
			return nil, fmt.Errorf("replay fixture %s: %w", path, err)
		}
	}

	mem := physmem.NewImage()
	for off, v := range ff.MCHBAR {
		if off%4 != 0 {
			return nil, fmt.Errorf("replay fixture %s: MCHBAR offset %#x is not dword aligned", path, off)
		}
		mem.Set(base+uint64(off), v)
	}

	return &fixture{identity: ff.Static, config: img, memory: mem}, nil
}

// mchbarBase reads the programmed MCHBAR base out of the captured host
// bridge
func mchbarBase(img *pciconf.Image) (uint64, error) {
	hb := pciconf.BDF(0, 0, 0)
	lo, err := img.Read(hb.At(0x48), pciconf.Width32)
	if err != nil {
		return 0, err
	}
	hi, err := img.Read(hb.At(0x4C), pciconf.Width32)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo&^0x7FFF), nil
}
