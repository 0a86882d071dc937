package imc

// Config is one decoded snapshot of the memory controller configuration
type Config struct {
	Generation   Generation    `json:"generation"`
	VendorID     uint16        `json:"vendor_id"`
	DeviceID     uint16        `json:"device_id"`
	KnownDevice  bool          `json:"known_device"`
	ChannelCount int           `json:"channel_count"`
	Channels     []Channel     `json:"channels"`
	Frequency    Frequency     `json:"memory_frequency"`
	ECCCapable   bool          `json:"ecc_capable"`
	AddressMap   AddressMap    `json:"address_map"`
	Registers    []RawRegister `json:"registers,omitempty"`
}

// TotalCapacity sums the size of every DIMM
func (c *Config) TotalCapacity() uint64 {
	var total uint64
	for _, ch := range c.Channels {
		total += ch.Capacity()
	}
	return total
}

// PopulatedChannels counts channels with at least one DIMM
func (c *Config) PopulatedChannels() int {
	n := 0
	for _, ch := range c.Channels {
		if ch.Populated {
			n++
		}
	}
	return n
}

// Channel is the organization of one DDR channel. An unpopulated channel
// has every other field at its zero value.
type Channel struct {
	Index              int    `json:"index"`
	Populated          bool   `json:"populated"`
	RankCount          int    `json:"rank_count"`
	DeviceWidth        int    `json:"device_width"`
	CapacityPerRank    uint64 `json:"capacity_per_rank"`
	ECCEnabled         bool   `json:"ecc_enabled"`
	RankInterleave     bool   `json:"rank_interleave"`
	EnhancedInterleave bool   `json:"enhanced_interleave"`
	// HighOrderRankInterleave is only reported from Haswell on
	HighOrderRankInterleave bool   `json:"high_order_rank_interleave"`
	DIMMs                   []DIMM `json:"dimms,omitempty"`
}

// Capacity sums the channel's DIMMs
func (ch Channel) Capacity() uint64 {
	var total uint64
	for _, d := range ch.DIMMs {
		total += d.Size
	}
	return total
}

// DIMM is one populated module. DIMM A is always the larger of the two.
type DIMM struct {
	Label       string `json:"label"`
	Slot        int    `json:"slot"`
	Size        uint64 `json:"size"`
	Ranks       int    `json:"ranks"`
	DeviceWidth int    `json:"device_width"`
}

// Frequency is the DRAM clock programmed by the BIOS
type Frequency struct {
	Ratio       uint32  `json:"ratio"`
	ClockMHz    float64 `json:"clock_mhz"`
	DataRateMTs uint32  `json:"data_rate_mts"`
}

// frequencyFromRatio converts a multiple of the 133.33 MHz reference clock
func frequencyFromRatio(ratio uint32) Frequency {
	if ratio == 0 {
		return Frequency{}
	}
	return Frequency{
		Ratio:       ratio,
		ClockMHz:    float64(ratio) * 400 / 3,
		DataRateMTs: (ratio*800 + 1) / 3,
	}
}

// Boundary is a host bridge address boundary register
type Boundary struct {
	Base   uint64 `json:"base"`
	Locked bool   `json:"locked"`
}

// Bar is a base address register of the host bridge
type Bar struct {
	Base    uint64 `json:"base"`
	Size    uint64 `json:"size,omitempty"`
	Enabled bool   `json:"enabled"`
}

// AddressMap holds the system address decode registers
type AddressMap struct {
	MCHBAR     Bar      `json:"mchbar"`
	PCIEXBAR   Bar      `json:"pciexbar"`
	DMIBAR     Bar      `json:"dmibar"`
	TOM        Boundary `json:"tom"`
	TOUUD      Boundary `json:"touud"`
	TOLUD      Boundary `json:"tolud"`
	RemapBase  Boundary `json:"remap_base"`
	RemapLimit Boundary `json:"remap_limit"`
	TSEGMB     Boundary `json:"tsegmb"`
	BDSM       Boundary `json:"bdsm"`
	BGSM       Boundary `json:"bgsm"`
}

// RawRegister is a register value as read, with its decoded fields
type RawRegister struct {
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Value    uint32            `json:"value"`
	Fields   map[string]uint64 `json:"fields"`
}
