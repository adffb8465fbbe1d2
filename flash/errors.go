package flash

import (
	"fmt"

	"github.com/jmllr/msp430-flash/bsl"
)

// WriteError reports the chunk at which the write phase aborted, either
// because the device rejected the write (Message) or because the command
// itself failed (Err).
type WriteError struct {
	Address uint32
	Message bsl.Message
	Err     error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write at 0x%06x: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("write at 0x%06x rejected (%s)", e.Address, e.Message)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerifyError reports the chunk at which verification aborted: the local
// CRC (Want) differed from the device-reported one (Got), or the CrcCheck
// command failed (Err).
type VerifyError struct {
	Address uint32
	Want    uint16
	Got     uint16
	Err     error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify at 0x%06x: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("verification failed at 0x%06x: local CRC 0x%04x, device CRC 0x%04x",
		e.Address, e.Want, e.Got)
}

func (e *VerifyError) Unwrap() error { return e.Err }
