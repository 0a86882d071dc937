package imc

func haswellMap() *RegisterMap {
	const hiBits = 7

	regs := []RegisterSpec{hostBridgeID()}
	regs = append(regs, splitBase(RegMCHBARLow, RegMCHBARHigh, 0x48, FieldEnable, 15, hiBits)...)
	regs = append(regs, splitBase(RegPCIEXBARLow, RegPCIEXBARHigh, 0x60, FieldEnable, 26, hiBits, pciexbarLength())...)
	regs = append(regs, splitBase(RegDMIBARLow, RegDMIBARHigh, 0x68, FieldEnable, 12, hiBits)...)
	regs = append(regs, splitBase(RegRemapBaseLow, RegRemapBaseHi, 0x90, FieldLock, 20, hiBits)...)
	regs = append(regs, splitBase(RegRemapLimLow, RegRemapLimHi, 0x98, FieldLock, 20, hiBits)...)
	regs = append(regs, splitBase(RegTOMLow, RegTOMHigh, 0xA0, FieldLock, 20, hiBits)...)
	regs = append(regs, splitBase(RegTOUUDLow, RegTOUUDHigh, 0xA8, FieldLock, 20, hiBits)...)
	regs = append(regs,
		lockedBase(RegBDSM, 0xB0),
		lockedBase(RegBGSM, 0xB4),
		lockedBase(RegTSEGMB, 0xB8),
		lockedBase(RegTOLUD, 0xBC),
		capID0A(),
		// Haswell adds high order rank interleave
		madDIMM(RegMADDIMMCh0, 0x5004, field(FieldHighOrderRankIntlv, 26, 1, Flag)),
		madDIMM(RegMADDIMMCh1, 0x5008, field(FieldHighOrderRankIntlv, 26, 1, Flag)),
		biosData(),
	)

	return &RegisterMap{
		Generation:     Haswell,
		Name:           "4th Generation Core (Haswell)",
		KnownDeviceIDs: []uint16{0x0C00, 0x0C04, 0x0C08, 0x0A04, 0x0D00, 0x0D04},
		Registers:      regs,
		Channels: []ChannelSpec{
			{Index: 0, Register: RegMADDIMMCh0},
			{Index: 1, Register: RegMADDIMMCh1},
		},
		MCHBAR: BarSpec{Low: RegMCHBARLow, High: RegMCHBARHigh, Size: mchbarWindow},
	}
}
