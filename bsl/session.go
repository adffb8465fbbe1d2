package bsl

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/albenik/go-serial/v2"
)

// Bounded timeout for every serial read. A silent device causes a
// NoResponse failure, never an indefinite hang.
const readTimeoutMs = 1000

var (
	// ErrNoResponse - read timed out or the acknowledgment byte was
	// unreadable or unrecognized
	ErrNoResponse = errors.New("no response from device")

	// ErrCorruptPacket - CRC check on a received frame failed
	ErrCorruptPacket = errors.New("received corrupted packet")
)

// RejectedError reports a non-ACK acknowledgment: the device refused the
// frame envelope. Not a fatal abort, callers decide how to proceed.
type RejectedError struct {
	Ack Acknowledgment
}

func (e *RejectedError) Error() string {
	return "device rejected frame: " + e.Ack.String()
}

// Session owns the serial connection towards the BSL and issues one
// synchronous command at a time. The transport is strictly half-duplex;
// a command's response is fully consumed before the next command is sent.
//
// A session without a reachable device runs in simulated mode: every
// command only logs the frame it would have sent and reports an empty
// successful result. This lets the flashing workflow run end-to-end
// against no hardware.
type Session struct {
	conn io.ReadWriteCloser
	r    io.Reader

	// port is the underlying serial handle, nil in simulated mode or
	// when the session runs over a custom transport
	port *serial.Port

	simulated bool
	verbose   bool
	baudrate  int
}

// Open opens the serial device at 9600 baud, 8 data bits, 1 stop bit, no
// parity, no flow control. If the device cannot be opened the session
// enters simulated mode instead of failing.
func Open(port string, verbose bool) *Session {
	conn, err := serial.Open(port,
		serial.WithBaudrate(9600),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
		serial.WithReadTimeout(readTimeoutMs),
	)

	if err != nil {
		log.Printf("Serial port %s not available, entering simulated mode (%v)", port, err)
		return &Session{simulated: true, verbose: verbose, baudrate: 9600}
	}

	// Discard stale bytes from a previous run
	conn.ResetInputBuffer()
	conn.ResetOutputBuffer()

	s := &Session{conn: conn, port: conn, verbose: verbose, baudrate: 9600}
	s.r = &timeoutReader{r: conn}
	return s
}

// NewSession wraps an already open byte stream, typically for tests or
// custom transports. Baud-rate reconfiguration is a no-op.
func NewSession(conn io.ReadWriteCloser, verbose bool) *Session {
	return &Session{
		conn:     conn,
		r:        &timeoutReader{r: conn},
		verbose:  verbose,
		baudrate: 9600,
	}
}

// Simulated reports whether the session runs without a device attached.
func (s *Session) Simulated() bool {
	return s.simulated
}

// Baudrate returns the current local baud rate.
func (s *Session) Baudrate() int {
	return s.baudrate
}

// Close closes the serial port. Safe to call on a simulated session.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// timeoutReader converts the serial port's zero-byte timeout reads into a
// hard error so that io.ReadFull cannot spin on a silent device.
type timeoutReader struct {
	r io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, ErrNoResponse
	}
	return n, err
}

// response is the classified reply to a single command.
type response struct {
	msg  Message
	data []byte
	raw  []byte
}

// exchange is the single send-and-receive procedure behind every command:
// wrap the payload into a frame, send it, await the acknowledgment and
// decode the response. LoadPC and ChangeBaud are fire-and-forget, the
// device does not reply to them.
func (s *Session) exchange(payload []byte) (*response, error) {
	frame := Wrap(payload)
	op := payload[0]

	if s.simulated {
		log.Printf("SIMULATED (%s) %s", opName(op), hex.EncodeToString(frame))
		return &response{msg: MsgSuccess}, nil
	}

	if s.verbose {
		log.Printf("Sending (%s) %s", opName(op), hex.EncodeToString(frame))
	}

	if _, err := s.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	if op == cmdLoadPC || op == cmdChangeBaud {
		return nil, nil
	}

	ackBuf := make([]byte, 1)
	if _, err := io.ReadFull(s.r, ackBuf); err != nil {
		return nil, ErrNoResponse
	}

	ack := Acknowledgment(ackBuf[0])
	if !ack.known() {
		return nil, ErrNoResponse
	}
	if ack != Ack {
		return nil, &RejectedError{Ack: ack}
	}

	body, err := ReadResponse(s.r)
	if err != nil {
		if errors.Is(err, ErrCorruptPacket) {
			return nil, ErrCorruptPacket
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if len(body) == 0 {
		return &response{}, nil
	}

	switch body[0] {
	case respData:
		if s.verbose {
			log.Printf("Received (DATA) %s", hex.EncodeToString(body[1:]))
		}
		return &response{data: body[1:]}, nil
	case respMessage:
		if len(body) < 2 {
			return nil, ErrCorruptPacket
		}
		msg := Message(body[1])
		if s.verbose {
			log.Printf("Received (MSG) %s", msg)
		}
		return &response{msg: msg}, nil
	default:
		// Unknown discriminator, hand the payload back unmodified
		return &response{raw: body}, nil
	}
}

// Write programs up to MaxChunkSize bytes at the given 24-bit address.
// Longer buffers are a caller contract violation and fail fast; callers
// chunk the image before writing.
func (s *Session) Write(addr uint32, data []byte) (Message, error) {
	if len(data) > MaxChunkSize {
		return 0, fmt.Errorf("write of %d bytes exceeds the %d byte device buffer", len(data), MaxChunkSize)
	}

	resp, err := s.exchange(writeCmd(addr, data))
	if err != nil {
		return 0, err
	}
	return resp.msg, nil
}

// WriteWord writes a single little-endian 16-bit value, the legacy scalar
// form of the Write command.
func (s *Session) WriteWord(addr uint32, value uint16) (Message, error) {
	resp, err := s.exchange(writeWordCmd(addr, value))
	if err != nil {
		return 0, err
	}
	return resp.msg, nil
}

// Unlock transmits the 32-byte BSL password. A nil password means the
// factory default, 32 bytes of 0xFF.
func (s *Session) Unlock(password []byte) (Message, error) {
	if password == nil {
		password = DefaultPassword()
	}
	if len(password) != PasswordLength {
		return 0, fmt.Errorf("password has wrong length %d, must be %d bytes", len(password), PasswordLength)
	}

	resp, err := s.exchange(unlockCmd(password))
	if err != nil {
		return 0, err
	}
	return resp.msg, nil
}

// MassErase erases the complete on-chip flash memory.
func (s *Session) MassErase() (Message, error) {
	resp, err := s.exchange(massEraseCmd())
	if err != nil {
		return 0, err
	}
	return resp.msg, nil
}

// CrcCheck asks the device for the CRC16 over length bytes starting at
// addr and returns the decoded little-endian value.
func (s *Session) CrcCheck(addr uint32, length uint16) (uint16, error) {
	resp, err := s.exchange(crcCheckCmd(addr, length))
	if err != nil {
		return 0, err
	}
	if s.simulated {
		return 0, nil
	}
	if len(resp.data) < 2 {
		return 0, fmt.Errorf("short CRC response (%d bytes)", len(resp.data))
	}
	return binary.LittleEndian.Uint16(resp.data), nil
}

// LoadPC makes the device jump to the given address and start execution.
// The device does not reply to this command.
func (s *Session) LoadPC(addr uint32) error {
	_, err := s.exchange(loadPCCmd(addr))
	return err
}

// Read returns length bytes of device memory starting at addr.
func (s *Session) Read(addr uint32, length uint16) ([]byte, error) {
	resp, err := s.exchange(readCmd(addr, length))
	if err != nil {
		return nil, err
	}
	return resp.data, nil
}

// Version queries the 4-byte BSL version identifier.
func (s *Session) Version() ([]byte, error) {
	resp, err := s.exchange(versionCmd())
	if err != nil {
		return nil, err
	}
	return resp.data, nil
}

// ChangeBaud switches the device to a new baud rate and immediately
// reconfigures the local side to match. The device does not acknowledge
// this command, and a local reconfiguration failure is non-fatal since
// some serial adapters reject on-the-fly changes.
func (s *Session) ChangeBaud(rate int) error {
	code, ok := baudCodes[rate]
	if !ok {
		return fmt.Errorf("unsupported baudrate %d", rate)
	}

	if _, err := s.exchange(changeBaudCmd(code)); err != nil {
		return err
	}

	if s.simulated {
		s.baudrate = rate
		return nil
	}

	if s.port == nil {
		log.Printf("No serial handle to reconfigure, staying at %d baud locally", s.baudrate)
		return nil
	}

	if err := s.port.Reconfigure(serial.WithBaudrate(rate)); err != nil {
		log.Printf("Baudrate change to %d not applied locally (%v)", rate, err)
		return nil
	}

	s.baudrate = rate
	return nil
}
