package smbioscheck

import (
	"fmt"
	"sort"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// speedTolerance absorbs the rounding firmware applies to 1333/1867 MT/s
const speedTolerance = 2

// Report is the result of comparing a snapshot with SMBIOS
type Report struct {
	DecodedTotal uint64   `json:"decoded_total"`
	SMBIOSTotal  uint64   `json:"smbios_total"`
	DecodedDIMMs int      `json:"decoded_dimms"`
	SMBIOSDIMMs  int      `json:"smbios_dimms"`
	Mismatches   []string `json:"mismatches,omitempty"`
}

// OK reports whether both sources agree
func (r Report) OK() bool { return len(r.Mismatches) == 0 }

func (r *Report) mismatch(format string, args ...interface{}) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

// Compare checks module count, sizes, ranks, speed and ECC
func Compare(cfg *imc.Config, modules []Module) Report {
	var decoded []imc.DIMM
	eccChannels := 0
	for _, ch := range cfg.Channels {
		decoded = append(decoded, ch.DIMMs...)
		if ch.ECCEnabled {
			eccChannels++
		}
	}

	r := Report{
		DecodedTotal: cfg.TotalCapacity(),
		DecodedDIMMs: len(decoded),
		SMBIOSDIMMs:  len(modules),
	}
	for _, m := range modules {
		r.SMBIOSTotal += m.Size
	}

	if r.DecodedDIMMs != r.SMBIOSDIMMs {
		r.mismatch("DIMM count: controller %d, SMBIOS %d", r.DecodedDIMMs, r.SMBIOSDIMMs)
	}
	if r.DecodedTotal != r.SMBIOSTotal {
		r.mismatch("total capacity: controller %d MiB, SMBIOS %d MiB", r.DecodedTotal>>20, r.SMBIOSTotal>>20)
	}

	if r.DecodedDIMMs == r.SMBIOSDIMMs {
		dSizes := make([]uint64, 0, len(decoded))
		sSizes := make([]uint64, 0, len(modules))
		for _, d := range decoded {
			dSizes = append(dSizes, d.Size)
		}
		for _, m := range modules {
			sSizes = append(sSizes, m.Size)
		}
		sortSizes(dSizes)
		sortSizes(sSizes)
		for i := range dSizes {
			if dSizes[i] != sSizes[i] {
				r.mismatch("module sizes: controller %v MiB, SMBIOS %v MiB", mibs(dSizes), mibs(sSizes))
				break
			}
		}

		if ranksReported(modules) {
			dRanks, sRanks := 0, 0
			for _, d := range decoded {
				dRanks += d.Ranks
			}
			for _, m := range modules {
				sRanks += m.Ranks
			}
			if dRanks != sRanks {
				r.mismatch("rank count: controller %d, SMBIOS %d", dRanks, sRanks)
			}
		}
	}

	rate := int(cfg.Frequency.DataRateMTs)
	for _, m := range modules {
		if m.SpeedMTs == 0 || rate == 0 {
			continue
		}
		if diff := m.SpeedMTs - rate; diff > speedTolerance || diff < -speedTolerance {
			r.mismatch("%s speed: controller %d MT/s, SMBIOS %d MT/s", m.Locator, rate, m.SpeedMTs)
		}
	}

	smbiosECC := false
	for _, m := range modules {
		smbiosECC = smbiosECC || m.ECC
	}
	if (eccChannels > 0) != smbiosECC {
		r.mismatch("ECC: controller %v, SMBIOS %v", eccChannels > 0, smbiosECC)
	}
	return r
}

func ranksReported(modules []Module) bool {
	for _, m := range modules {
		if m.Ranks == 0 {
			return false
		}
	}
	return len(modules) > 0
}

func sortSizes(s []uint64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

func mibs(s []uint64) []uint64 {
	out := make([]uint64, len(s))
	for i, v := range s {
		out[i] = v >> 20
	}
	return out
}
