package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

func formatSize(b uint64) string {
	switch {
	case b == 0:
		return "0"
	case b%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", b>>30)
	case b%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", b>>20)
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// printConfig writes the human readable form of a snapshot
func printConfig(w io.Writer, cfg *imc.Config, raw bool) {
	known := ""
	if !cfg.KnownDevice {
		known = ", not in the known device list"
	}
	fmt.Fprintf(w, "Generation:  %s (host bridge %04x:%04x%s)\n", cfg.Generation, cfg.VendorID, cfg.DeviceID, known)

	if cfg.Frequency.Ratio == 0 {
		fmt.Fprintf(w, "Memory:      not initialized\n")
	} else {
		fmt.Fprintf(w, "Memory:      DDR3-%d (%.1f MHz, ratio %d)\n",
			cfg.Frequency.DataRateMTs, cfg.Frequency.ClockMHz, cfg.Frequency.Ratio)
	}
	fmt.Fprintf(w, "ECC capable: %s\n", yesNo(cfg.ECCCapable))
	fmt.Fprintf(w, "Total:       %s in %d of %d channels\n",
		formatSize(cfg.TotalCapacity()), cfg.PopulatedChannels(), cfg.ChannelCount)

	fmt.Fprintf(w, "\n%-8s %-5s %-9s %-6s %-6s %-4s %-4s %-4s %-4s\n", "Channel", "DIMM", "Size", "Ranks", "Width", "ECC", "RI", "EIM", "HORI")
	fmt.Fprintln(w, strings.Repeat("-", 61))
	for _, ch := range cfg.Channels {
		if !ch.Populated {
			fmt.Fprintf(w, "%-8d %-5s empty\n", ch.Index, "-")
			continue
		}
		for _, d := range ch.DIMMs {
			fmt.Fprintf(w, "%-8d %-5s %-9s %-6d x%-5d %-4s %-4s %-4s %-4s\n",
				ch.Index, d.Label, formatSize(d.Size), d.Ranks, d.DeviceWidth,
				yesNo(ch.ECCEnabled), yesNo(ch.RankInterleave), yesNo(ch.EnhancedInterleave),
				yesNo(ch.HighOrderRankInterleave))
		}
	}

	am := cfg.AddressMap
	fmt.Fprintf(w, "\nAddress map:\n")
	bar := func(name string, b imc.Bar) {
		if !b.Enabled {
			fmt.Fprintf(w, "  %-11s disabled\n", name)
			return
		}
		size := ""
		if b.Size != 0 {
			size = " size " + formatSize(b.Size)
		}
		fmt.Fprintf(w, "  %-11s %#012x%s\n", name, b.Base, size)
	}
	boundary := func(name string, b imc.Boundary) {
		lock := ""
		if b.Locked {
			lock = " locked"
		}
		fmt.Fprintf(w, "  %-11s %#012x%s\n", name, b.Base, lock)
	}
	bar("MCHBAR", am.MCHBAR)
	bar("PCIEXBAR", am.PCIEXBAR)
	bar("DMIBAR", am.DMIBAR)
	boundary("TOLUD", am.TOLUD)
	boundary("TOM", am.TOM)
	boundary("TOUUD", am.TOUUD)
	boundary("REMAPBASE", am.RemapBase)
	boundary("REMAPLIMIT", am.RemapLimit)
	boundary("TSEGMB", am.TSEGMB)
	boundary("BDSM", am.BDSM)
	boundary("BGSM", am.BGSM)

	if raw {
		printRegisters(w, cfg.Registers)
	}
}

func printRegisters(w io.Writer, regs []imc.RawRegister) {
	fmt.Fprintf(w, "\nRegisters:\n")
	for _, r := range regs {
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := make([]string, 0, len(names))
		for _, name := range names {
			fields = append(fields, fmt.Sprintf("%s=%#x", name, r.Fields[name]))
		}
		fmt.Fprintf(w, "  %-14s %-18s %#010x  %s\n", r.Name, r.Location, r.Value, strings.Join(fields, " "))
	}
}
