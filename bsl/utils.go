package bsl

import "github.com/sigurn/crc16"

const (
	// Every request frame starts with this header byte
	frameHeader = 0x80

	// Response payload discriminators
	respData    = 0x3A
	respMessage = 0x3B
)

// BSL command opcodes
const (
	cmdWrite      = 0x10
	cmdUnlock     = 0x11
	cmdMassErase  = 0x15
	cmdCrcCheck   = 0x16
	cmdLoadPC     = 0x17
	cmdRead       = 0x18
	cmdVersion    = 0x19
	cmdChangeBaud = 0x52
)

// MaxChunkSize is the device write buffer limit. A single Write command
// must not carry more data than this.
const MaxChunkSize = 256

// PasswordLength is the exact length of the BSL unlock password.
const PasswordLength = 32

// Acknowledgment is the single byte the device returns immediately after
// receiving a frame, before any data frame follows. It reports whether the
// frame envelope itself was accepted, not the command outcome.
type Acknowledgment byte

const (
	Ack                  Acknowledgment = 0x00
	AckHeaderIncorrect   Acknowledgment = 0x51
	AckChecksumIncorrect Acknowledgment = 0x52
	AckPacketSizeZero    Acknowledgment = 0x53
	AckPacketTooBig      Acknowledgment = 0x54
	AckUnknown           Acknowledgment = 0x55
	AckUnknownBaudrate   Acknowledgment = 0x56
	AckPacketSizeError   Acknowledgment = 0x57
)

func (a Acknowledgment) known() bool {
	return a == Ack || (a >= AckHeaderIncorrect && a <= AckPacketSizeError)
}

func (a Acknowledgment) String() string {
	switch a {
	case Ack:
		return "ACK"
	case AckHeaderIncorrect:
		return "header incorrect"
	case AckChecksumIncorrect:
		return "checksum incorrect"
	case AckPacketSizeZero:
		return "packet size zero"
	case AckPacketTooBig:
		return "packet too big"
	case AckUnknown:
		return "unknown error"
	case AckUnknownBaudrate:
		return "unknown baudrate"
	case AckPacketSizeError:
		return "packet size error"
	}
	return "unrecognized acknowledgment"
}

// Message is the semantic outcome of a command, carried in a response
// payload tagged with the message discriminator.
type Message byte

const (
	MsgSuccess             Message = 0x00
	MsgMemWriteCheckFailed Message = 0x01
	MsgBslLocked           Message = 0x04
	MsgIncorrectPassword   Message = 0x05
	MsgUnknownCommand      Message = 0x06
)

func (m Message) String() string {
	switch m {
	case MsgSuccess:
		return "success"
	case MsgMemWriteCheckFailed:
		return "memory write check failed"
	case MsgBslLocked:
		return "BSL locked"
	case MsgIncorrectPassword:
		return "incorrect password"
	case MsgUnknownCommand:
		return "unknown command"
	}
	return "unrecognized message"
}

// Baudrate codes accepted by the ChangeBaud command
var baudCodes = map[int]byte{
	9600:   0x02,
	19200:  0x03,
	38400:  0x04,
	57600:  0x05,
	115200: 0x06,
}

// The device computes CRC-CCITT with initial value 0xFFFF over the frame
// payload. Write and verify paths must match it bit for bit.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Crc16 computes the checksum the BSL uses for frame integrity and for
// the CrcCheck command.
func Crc16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// DefaultPassword returns the factory unlock password, 32 bytes of 0xFF.
func DefaultPassword() []byte {
	passwd := make([]byte, PasswordLength)
	for i := range passwd {
		passwd[i] = 0xFF
	}
	return passwd
}

func appendAddr(p []byte, addr uint32) []byte {
	return append(p, byte(addr), byte(addr>>8), byte(addr>>16))
}

func opName(op byte) string {
	switch op {
	case cmdWrite:
		return "WRITE"
	case cmdUnlock:
		return "UNLOCK"
	case cmdMassErase:
		return "MASS_ERASE"
	case cmdCrcCheck:
		return "CRC_CHECK"
	case cmdLoadPC:
		return "LOAD_PC"
	case cmdRead:
		return "READ"
	case cmdVersion:
		return "VERSION"
	case cmdChangeBaud:
		return "CHG_BAUD"
	}
	return "UNKNOWN"
}
