package imc

import "github.com/mscrnt/mchconfig/pkg/pciconf"

// Register names
const (
	RegHostBridgeID = "HB_ID"
	RegMCHBARLow    = "MCHBAR_LO"
	RegMCHBARHigh   = "MCHBAR_HI"
	RegPCIEXBARLow  = "PCIEXBAR_LO"
	RegPCIEXBARHigh = "PCIEXBAR_HI"
	RegDMIBARLow    = "DMIBAR_LO"
	RegDMIBARHigh   = "DMIBAR_HI"
	RegRemapBaseLow = "REMAPBASE_LO"
	RegRemapBaseHi  = "REMAPBASE_HI"
	RegRemapLimLow  = "REMAPLIMIT_LO"
	RegRemapLimHi   = "REMAPLIMIT_HI"
	RegTOMLow       = "TOM_LO"
	RegTOMHigh      = "TOM_HI"
	RegTOUUDLow     = "TOUUD_LO"
	RegTOUUDHigh    = "TOUUD_HI"
	RegBDSM         = "BDSM"
	RegBGSM         = "BGSM"
	RegTSEGMB       = "TSEGMB"
	RegTOLUD        = "TOLUD"
	RegCapID0A      = "CAPID0_A"
	RegMADDIMMCh0   = "MAD_DIMM_CH0"
	RegMADDIMMCh1   = "MAD_DIMM_CH1"
	RegBIOSData     = "MC_BIOS_DATA"
)

// Field names
const (
	FieldVendorID           = "VID"
	FieldDeviceID           = "DID"
	FieldEnable             = "EN"
	FieldLength             = "LENGTH"
	FieldLock               = "LOCK"
	FieldBase               = "BASE"
	FieldBaseLow            = "BASE_LO"
	FieldBaseHigh           = "BASE_HI"
	FieldECCDisable         = "ECCDIS"
	FieldFrequency          = "MC_FREQ"
	FieldDIMMASize          = "DIMM_A_SIZE"
	FieldDIMMBSize          = "DIMM_B_SIZE"
	FieldDIMMASelect        = "DAS"
	FieldDIMMARanks         = "DANOR"
	FieldDIMMBRanks         = "DBNOR"
	FieldDIMMAWidth         = "DAW"
	FieldDIMMBWidth         = "DBW"
	FieldRankInterleave     = "RI"
	FieldEnhancedInterleave = "ENH_INTERLEAVE"
	FieldHighOrderRankIntlv = "HORI"
	FieldECC                = "ECC"
)

const (
	mib = uint64(1) << 20
	gib = uint64(1) << 30

	// DIMM sizes are reported in 256 MiB units
	dimmSizeUnit = 256 * mib

	// mchbarWindow is the size of the MCHBAR register block
	mchbarWindow = 32 * 1024
)

var hostBridge = pciconf.BDF(0, 0, 0)

func field(name string, offset, width uint8, decode DecodeFunc) BitField {
	return BitField{Name: name, Offset: offset, Width: width, Decode: decode}
}

func dependent(name string, offset, width uint8, decode DecodeFunc, on string) BitField {
	return BitField{Name: name, Offset: offset, Width: width, Decode: decode, DependsOn: on}
}

func configReg(name string, offset uint8, fields ...BitField) RegisterSpec {
	return RegisterSpec{
		Name:       name,
		Space:      SpaceConfig,
		Coordinate: hostBridge.At(offset),
		Width:      pciconf.Width32,
		Fields:     fields,
	}
}

func barReg(name string, offset uint32, fields ...BitField) RegisterSpec {
	return RegisterSpec{
		Name:   name,
		Space:  SpaceMCHBAR,
		Offset: offset,
		Width:  pciconf.Width32,
		Fields: fields,
	}
}

func hostBridgeID() RegisterSpec {
	return configReg(RegHostBridgeID, pciconf.VendorIDOffset,
		field(FieldVendorID, 0, 16, Raw),
		field(FieldDeviceID, 16, 16, Raw),
	)
}

// splitBase builds the low/high halves of a 64-bit base register. The low
// half carries the flag in bit 0 and the address from loShift up, the high
// half holds hiBits address bits above bit 31.
func splitBase(lo, hi string, offset uint8, flag string, loShift, hiBits uint8, extra ...BitField) []RegisterSpec {
	loFields := []BitField{field(flag, 0, 1, Flag)}
	loFields = append(loFields, extra...)
	loFields = append(loFields, field(FieldBaseLow, loShift, 32-loShift, Scaled(uint64(1)<<loShift)))
	return []RegisterSpec{
		configReg(lo, offset, loFields...),
		configReg(hi, offset+4, field(FieldBaseHigh, 0, hiBits, Scaled(uint64(1)<<32))),
	}
}

// lockedBase is a 32-bit boundary register with a lock bit and a 1 MiB
// granular base
func lockedBase(name string, offset uint8) RegisterSpec {
	return configReg(name, offset,
		field(FieldLock, 0, 1, Flag),
		field(FieldBase, 20, 12, Scaled(mib)),
	)
}

func pciexbarLength() BitField {
	return dependent(FieldLength, 1, 2, Enum(map[uint32]uint64{
		0: 256 * mib,
		1: 128 * mib,
		2: 64 * mib,
	}), FieldEnable)
}

func capID0A() RegisterSpec {
	return configReg(RegCapID0A, 0xE4, field(FieldECCDisable, 25, 1, Flag))
}

// madDIMM is the per channel DIMM organization register. Rank count, width
// and ECC only mean something for a DIMM with a non-zero size.
func madDIMM(name string, offset uint32, extra ...BitField) RegisterSpec {
	ranks := Enum(map[uint32]uint64{0: 1, 1: 2})
	width := Enum(map[uint32]uint64{0: 8, 1: 16})
	fields := []BitField{
		field(FieldDIMMASize, 0, 8, Scaled(dimmSizeUnit)),
		field(FieldDIMMBSize, 8, 8, Scaled(dimmSizeUnit)),
		field(FieldDIMMASelect, 16, 1, Flag),
		dependent(FieldDIMMARanks, 17, 1, ranks, FieldDIMMASize),
		dependent(FieldDIMMBRanks, 18, 1, ranks, FieldDIMMBSize),
		dependent(FieldDIMMAWidth, 19, 1, width, FieldDIMMASize),
		dependent(FieldDIMMBWidth, 20, 1, width, FieldDIMMBSize),
		field(FieldRankInterleave, 21, 1, Flag),
		field(FieldEnhancedInterleave, 22, 1, Flag),
		dependent(FieldECC, 24, 2, Raw, FieldDIMMASize),
	}
	return barReg(name, offset, append(fields, extra...)...)
}

func biosData() RegisterSpec {
	return barReg(RegBIOSData, 0x5E04, field(FieldFrequency, 0, 4, Raw))
}
