package imc

// Sandy Bridge decodes 36 physical address bits.
func sandyBridgeMap() *RegisterMap {
	const hiBits = 4

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
		Generation:     SandyBridge,
		Name:           "2nd Generation Core (Sandy Bridge)",
		KnownDeviceIDs: []uint16{0x0100, 0x0104, 0x0108, 0x010C},
		Registers:      regs,
		Channels: []ChannelSpec{
			{Index: 0, Register: RegMADDIMMCh0},
			{Index: 1, Register: RegMADDIMMCh1},
		},
		MCHBAR: BarSpec{Low: RegMCHBARLow, High: RegMCHBARHigh, Size: mchbarWindow},
	}
}
