package imc

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

const intelVendorID = 0x8086

// Decoder reads a register map through a port and assembles a Config. It
// holds no state between calls.
type Decoder struct {
	logger *log.Logger
	debug  *log.Logger
}

// NewDecoder creates a decoder. A nil logger writes warnings to stderr; a
// nil debug logger discards register traces.
func NewDecoder(logger, debug *log.Logger) *Decoder {
	if logger == nil {
		logger = log.New(os.Stderr, "[imc] ", log.LstdFlags)
	}
	if debug == nil {
		debug = log.New(io.Discard, "", 0)
	}
	return &Decoder{logger: logger, debug: debug}
}

// Decode reads every register of m once and decodes it
func Decode(m *RegisterMap, port pciconf.ConfigSpacePort, mapper physmem.Mapper) (*Config, error) {
	return NewDecoder(nil, nil).Decode(m, port, mapper)
}

type reading struct {
	spec   *RegisterSpec
	raw    uint32
	values map[string]uint64
}

func (r *reading) flag(name string) bool { return r.values[name] != 0 }

// Decode reads every register of m once and decodes it. Either the whole
// Config is returned or an error and nil.
func (d *Decoder) Decode(m *RegisterMap, port pciconf.ConfigSpacePort, mapper physmem.Mapper) (*Config, error) {
	if m == nil {
		return nil, fmt.Errorf("register map cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return nil, &DecodeError{Register: m.Generation.String(), Err: err}
	}

	readings := make(map[string]*reading, len(m.Registers))
	var order []*reading

	for i := range m.Registers {
		spec := &m.Registers[i]
		if spec.Space != SpaceConfig {
			continue
		}
		raw, err := port.Read(spec.Coordinate, spec.Width)
		if err != nil {
			return nil, &DecodeError{Register: spec.Name, Reason: "read " + spec.Location(), Err: err}
		}
		d.debug.Printf("%-14s %-16s = %#08x", spec.Name, spec.Location(), raw)
		r := &reading{spec: spec, raw: raw}
		readings[spec.Name] = r
		order = append(order, r)
	}

	// Identify the device before trusting any other field
	id := readings[RegHostBridgeID]
	vendorID := uint16(id.raw)
	deviceID := uint16(id.raw >> 16)
	if vendorID == 0xFFFF {
		return nil, &DecodeError{Register: RegHostBridgeID, Field: FieldVendorID, Raw: id.raw, Reason: "no device at " + id.spec.Location()}
	}
	if vendorID != intelVendorID {
		return nil, &DecodeError{Register: RegHostBridgeID, Field: FieldVendorID, Raw: id.raw, Reason: fmt.Sprintf("vendor %#04x is not Intel", vendorID)}
	}
	known := m.KnownDevice(deviceID)
	if !known {
		d.logger.Printf("Warning: host bridge device id %#04x is not a known %s part, decoding anyway", deviceID, m.Generation)
	}

	for _, r := range order {
		if err := decodeFields(r); err != nil {
			return nil, err
		}
	}

	barLow, barHigh := readings[m.MCHBAR.Low], readings[m.MCHBAR.High]
	if !barLow.flag(FieldEnable) {
		return nil, &DecodeError{Register: m.MCHBAR.Low, Field: FieldEnable, Raw: barLow.raw, Reason: "MCHBAR is disabled"}
	}
	barBase := barLow.values[FieldBaseLow] + barHigh.values[FieldBaseHigh]

	window, err := mapper.Map(barBase, m.MCHBAR.Size)
	if err != nil {
		return nil, &DecodeError{Register: m.MCHBAR.Low, Reason: fmt.Sprintf("map MCHBAR at %#x", barBase), Err: err}
	}
	defer func() { _ = window.Close() }()

	for i := range m.Registers {
		spec := &m.Registers[i]
		if spec.Space != SpaceMCHBAR {
			continue
		}
		raw, err := window.Read32(spec.Offset)
		if err != nil {
			return nil, &DecodeError{Register: spec.Name, Reason: "read " + spec.Location(), Err: err}
		}
		d.debug.Printf("%-14s %-16s = %#08x", spec.Name, spec.Location(), raw)
		r := &reading{spec: spec, raw: raw}
		if err := decodeFields(r); err != nil {
			return nil, err
		}
		readings[spec.Name] = r
		order = append(order, r)
	}

	eccCapable := !readings[RegCapID0A].flag(FieldECCDisable)

	channels := make([]Channel, 0, len(m.Channels))
	for _, cs := range m.Channels {
		ch, err := assembleChannel(cs, readings[cs.Register], eccCapable)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	bios := readings[RegBIOSData]
	ratio := uint32(bios.values[FieldFrequency])
	for _, ch := range channels {
		if ch.Populated && ratio == 0 {
			return nil, &DecodeError{Register: RegBIOSData, Field: FieldFrequency, Raw: bios.raw, Reason: "memory clock ratio is zero with populated channels"}
		}
	}

	cfg := &Config{
		Generation:   m.Generation,
		VendorID:     vendorID,
		DeviceID:     deviceID,
		KnownDevice:  known,
		ChannelCount: len(channels),
		Channels:     channels,
		Frequency:    frequencyFromRatio(ratio),
		ECCCapable:   eccCapable,
		AddressMap:   assembleAddressMap(m, readings, barBase),
		Registers:    rawRegisters(order),
	}
	return cfg, nil
}

// decodeFields decodes each field in order. A dependent field whose
// presence field is zero keeps the zero sentinel and is never decoded.
func decodeFields(r *reading) error {
	r.values = make(map[string]uint64, len(r.spec.Fields))
	for _, f := range r.spec.Fields {
		if f.DependsOn != "" {
			dep, _ := r.spec.Field(f.DependsOn)
			if dep.Extract(r.raw) == 0 {
				r.values[f.Name] = 0
				continue
			}
		}
		v, err := f.Value(r.raw)
		if err != nil {
			return &DecodeError{Register: r.spec.Name, Field: f.Name, Raw: r.raw, Reason: "bits " + f.String(), Err: err}
		}
		r.values[f.Name] = v
	}
	return nil
}

func assembleChannel(cs ChannelSpec, r *reading, eccCapable bool) (Channel, error) {
	v := r.values
	ch := Channel{
		Index:              cs.Index,
		RankInterleave:     r.flag(FieldRankInterleave),
		EnhancedInterleave: r.flag(FieldEnhancedInterleave),
		// absent from the map before Haswell, so always false there
		HighOrderRankInterleave: r.flag(FieldHighOrderRankIntlv),
	}

	if v[FieldDIMMBSize] > v[FieldDIMMASize] {
		return Channel{}, &DecodeError{Register: r.spec.Name, Field: FieldDIMMBSize, Raw: r.raw, Reason: "DIMM B is larger than DIMM A"}
	}

	slotA := int(v[FieldDIMMASelect])
	candidates := []DIMM{
		{Label: "A", Slot: slotA, Size: v[FieldDIMMASize], Ranks: int(v[FieldDIMMARanks]), DeviceWidth: int(v[FieldDIMMAWidth])},
		{Label: "B", Slot: 1 - slotA, Size: v[FieldDIMMBSize], Ranks: int(v[FieldDIMMBRanks]), DeviceWidth: int(v[FieldDIMMBWidth])},
	}
	for _, dimm := range candidates {
		if dimm.Size == 0 {
			continue
		}
		ch.DIMMs = append(ch.DIMMs, dimm)
		ch.RankCount += dimm.Ranks
	}
	ch.Populated = len(ch.DIMMs) > 0

	if a := candidates[0]; a.Size != 0 {
		ch.DeviceWidth = a.DeviceWidth
		ch.CapacityPerRank = a.Size / uint64(a.Ranks)
	}

	ch.ECCEnabled = v[FieldECC] != 0
	if ch.ECCEnabled && !eccCapable {
		return Channel{}, &DecodeError{Register: r.spec.Name, Field: FieldECC, Raw: r.raw, Reason: "ECC active on a part with ECC fused off"}
	}
	return ch, nil
}

func assembleAddressMap(m *RegisterMap, readings map[string]*reading, mchbar uint64) AddressMap {
	split := func(lo, hi string) Boundary {
		return Boundary{
			Base:   readings[lo].values[FieldBaseLow] + readings[hi].values[FieldBaseHigh],
			Locked: readings[lo].flag(FieldLock),
		}
	}
	single := func(name string) Boundary {
		return Boundary{Base: readings[name].values[FieldBase], Locked: readings[name].flag(FieldLock)}
	}
	bar := func(lo, hi string) Bar {
		return Bar{
			Base:    readings[lo].values[FieldBaseLow] + readings[hi].values[FieldBaseHigh],
			Size:    readings[lo].values[FieldLength],
			Enabled: readings[lo].flag(FieldEnable),
		}
	}

	return AddressMap{
		MCHBAR:     Bar{Base: mchbar, Size: uint64(m.MCHBAR.Size), Enabled: true},
		PCIEXBAR:   bar(RegPCIEXBARLow, RegPCIEXBARHigh),
		DMIBAR:     bar(RegDMIBARLow, RegDMIBARHigh),
		TOM:        split(RegTOMLow, RegTOMHigh),
		TOUUD:      split(RegTOUUDLow, RegTOUUDHigh),
		TOLUD:      single(RegTOLUD),
		RemapBase:  split(RegRemapBaseLow, RegRemapBaseHi),
		RemapLimit: split(RegRemapLimLow, RegRemapLimHi),
		TSEGMB:     single(RegTSEGMB),
		BDSM:       single(RegBDSM),
		BGSM:       single(RegBGSM),
	}
}

func rawRegisters(order []*reading) []RawRegister {
	out := make([]RawRegister, 0, len(order))
	for _, r := range order {
		out = append(out, RawRegister{
			Name:     r.spec.Name,
			Location: r.spec.Location(),
			Value:    r.raw,
			Fields:   r.values,
		})
	}
	return out
}
