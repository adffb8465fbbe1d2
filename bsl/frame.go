package bsl

import (
	"encoding/binary"
	"io"
)

// Wrap builds the frame envelope for a command payload:
//
//	[0x80][lenLo][lenHi][payload...][crcLo][crcHi]
//
// The length counts payload bytes only and the CRC is computed over the
// payload only, both little-endian.
func Wrap(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, frameHeader)
	frame = append(frame, byte(len(payload)), byte(len(payload)>>8))
	frame = append(frame, payload...)

	crc := Crc16(payload)
	frame = append(frame, byte(crc), byte(crc>>8))

	return frame
}

// ReadResponse consumes a response frame from r, positioned right after
// the acknowledgment byte: a header byte (discarded), a 2-byte LE payload
// length, the payload and a 2-byte LE CRC. Returns ErrCorruptPacket if
// the CRC over the payload does not match the received value.
func ReadResponse(r io.Reader) ([]byte, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint16(head[1:3])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	tail := make([]byte, 2)
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint16(tail) != Crc16(payload) {
		return nil, ErrCorruptPacket
	}

	return payload, nil
}
