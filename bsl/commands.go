package bsl

// Command payload builders. Every payload starts with the command opcode;
// addresses are 3-byte little-endian (24-bit address space), lengths are
// 2-byte little-endian.

func writeCmd(addr uint32, data []byte) []byte {
	p := appendAddr([]byte{cmdWrite}, addr)
	return append(p, data...)
}

// Legacy scalar form of Write, sends a single 16-bit value.
func writeWordCmd(addr uint32, value uint16) []byte {
	p := appendAddr([]byte{cmdWrite}, addr)
	return append(p, byte(value), byte(value>>8))
}

func unlockCmd(password []byte) []byte {
	return append([]byte{cmdUnlock}, password...)
}

func massEraseCmd() []byte {
	return []byte{cmdMassErase}
}

func crcCheckCmd(addr uint32, length uint16) []byte {
	p := appendAddr([]byte{cmdCrcCheck}, addr)
	return append(p, byte(length), byte(length>>8))
}

func loadPCCmd(addr uint32) []byte {
	return appendAddr([]byte{cmdLoadPC}, addr)
}

func readCmd(addr uint32, length uint16) []byte {
	p := appendAddr([]byte{cmdRead}, addr)
	return append(p, byte(length), byte(length>>8))
}

func versionCmd() []byte {
	return []byte{cmdVersion}
}

func changeBaudCmd(code byte) []byte {
	return []byte{cmdChangeBaud, code}
}
