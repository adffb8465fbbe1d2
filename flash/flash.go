package flash

import (
	"fmt"
	"log"

	"github.com/jmllr/msp430-flash/bsl"
)

// Device is the subset of BSL commands the flasher drives.
// *bsl.Session implements it.
type Device interface {
	Unlock(password []byte) (bsl.Message, error)
	MassErase() (bsl.Message, error)
	Version() ([]byte, error)
	Write(addr uint32, data []byte) (bsl.Message, error)
	CrcCheck(addr uint32, length uint16) (uint16, error)
	LoadPC(addr uint32) error
	ChangeBaud(rate int) error
	Simulated() bool
}

// Flasher sequences unlock, version query, chunked write, chunked verify
// and the execution jump over an arbitrary-length image.
type Flasher struct {
	dev    Device
	config Config
}

// New creates a Flasher over an open BSL device.
func New(dev Device, opts ...Option) *Flasher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{dev: dev, config: cfg}
}

// Flash programs image into flash memory starting at startAddr and
// verifies it chunk by chunk against the device-computed CRC.
//
// Unlock and version failures are logged but do not abort the run: a
// locked device simply rejects the subsequent writes, which surfaces as a
// write-phase failure. A write or verify failure aborts only its own
// phase; the execution jump is still issued when JumpAlways is set,
// otherwise only after both phases completed cleanly.
func (f *Flasher) Flash(image []byte, startAddr uint32) error {
	if f.config.MassErase {
		f.massErase()
	}

	f.unlock()
	f.version()

	if f.config.BaudRate != 0 {
		f.changeBaud()
	}

	log.Printf("Flashing 0x%06x bytes to target at 0x%06x", len(image), startAddr)
	err := f.writeImage(image, startAddr)
	if err != nil {
		log.Printf("Write phase failed: %v", err)
	}

	if verr := f.verifyImage(image, startAddr); verr != nil {
		log.Printf("Verify phase failed: %v", verr)
		if err == nil {
			err = verr
		}
	}

	if err == nil || f.config.JumpAlways {
		if jerr := f.dev.LoadPC(startAddr); jerr != nil && err == nil {
			err = fmt.Errorf("execution jump: %w", jerr)
		}
	}

	return err
}

// Run unlocks the BSL and jumps to startAddr without programming
// anything, restarting an already flashed application.
func (f *Flasher) Run(startAddr uint32) error {
	f.unlock()
	return f.dev.LoadPC(startAddr)
}

func (f *Flasher) massErase() {
	msg, err := f.dev.MassErase()
	if err != nil {
		log.Printf("Mass erase failed: %v", err)
	} else if msg != bsl.MsgSuccess {
		log.Printf("Mass erase rejected (%s)", msg)
	}
}

func (f *Flasher) unlock() {
	msg, err := f.dev.Unlock(f.config.Password)
	if err != nil {
		log.Printf("Could not unlock BSL: %v", err)
	} else if msg != bsl.MsgSuccess {
		log.Printf("Could not unlock BSL (%s)", msg)
	} else {
		log.Print("BSL unlocked")
	}
}

func (f *Flasher) version() {
	ver, err := f.dev.Version()
	if err != nil {
		log.Printf("Could not read BSL version: %v", err)
		return
	}
	if len(ver) >= 4 {
		log.Printf("BSL version on target: %02x %02x %02x %02x", ver[0], ver[1], ver[2], ver[3])
	}
}

// Baudrate changes are best effort, older BSL revisions ignore them.
func (f *Flasher) changeBaud() {
	if err := f.dev.ChangeBaud(f.config.BaudRate); err != nil {
		log.Printf("Baudrate change to %d failed: %v", f.config.BaudRate, err)
	}
}

// writeImage iterates the image address-ascending in chunks of at most
// ChunkSize bytes; the final chunk carries exactly the remaining bytes.
// The first non-success message aborts the phase.
func (f *Flasher) writeImage(image []byte, start uint32) error {
	chunkSize := f.config.ChunkSize

	for offset := 0; offset < len(image); offset += chunkSize {
		end := offset + chunkSize
		if end > len(image) {
			end = len(image)
		}

		addr := start + uint32(offset)
		msg, err := f.dev.Write(addr, image[offset:end])
		if err != nil {
			return &WriteError{Address: addr, Err: err}
		}
		if msg != bsl.MsgSuccess {
			return &WriteError{Address: addr, Message: msg}
		}

		f.report(PhaseWrite, end, len(image))
	}

	return nil
}

// verifyImage re-iterates the written range, comparing the local CRC16 of
// each chunk with the device-computed value. The first mismatch aborts
// the phase; remaining chunks are not scanned.
func (f *Flasher) verifyImage(image []byte, start uint32) error {
	if len(image) > 0 && f.dev.Simulated() {
		log.Print("Simulated session, skipping CRC verification")
		return nil
	}

	chunkSize := f.config.ChunkSize

	for offset := 0; offset < len(image); offset += chunkSize {
		end := offset + chunkSize
		if end > len(image) {
			end = len(image)
		}

		chunk := image[offset:end]
		addr := start + uint32(offset)

		want := bsl.Crc16(chunk)
		got, err := f.dev.CrcCheck(addr, uint16(len(chunk)))
		if err != nil {
			return &VerifyError{Address: addr, Err: err}
		}
		if got != want {
			return &VerifyError{Address: addr, Want: want, Got: got}
		}

		f.report(PhaseVerify, end, len(image))
	}

	return nil
}

func (f *Flasher) report(phase Phase, bytes, total int) {
	if f.config.Progress != nil {
		f.config.Progress(Progress{Phase: phase, Bytes: bytes, Total: total})
	}
}
