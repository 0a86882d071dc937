package imc

// Ivy Bridge widens physical addressing to 39 bits.
func ivyBridgeMap() *RegisterMap {
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
		madDIMM(RegMADDIMMCh0, 0x5004),
		madDIMM(RegMADDIMMCh1, 0x5008),
		biosData(),
	)

	return &RegisterMap{
		Generation:     IvyBridge,
		Name:           "3rd Generation Core (Ivy Bridge)",
		KnownDeviceIDs: []uint16{0x0150, 0x0154, 0x0158, 0x015C},
		Registers:      regs,
		Channels: []ChannelSpec{
			{Index: 0, Register: RegMADDIMMCh0},
			{Index: 1, Register: RegMADDIMMCh1},
		},
		MCHBAR: BarSpec{Low: RegMCHBARLow, High: RegMCHBARHigh, Size: mchbarWindow},
	}
}
