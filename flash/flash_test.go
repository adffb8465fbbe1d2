package flash

import (
	"errors"
	"testing"

	"github.com/jmllr/msp430-flash/bsl"
)

type crcCall struct {
	addr   uint32
	length uint16
}

// fakeDevice records every command and keeps the written chunks so that
// CrcCheck can answer with the CRC of what was actually programmed.
type fakeDevice struct {
	mem           map[uint32][]byte
	writeAttempts int
	writes        []uint32
	writeLens     []int
	crcCalls      []crcCall
	jumps         []uint32
	unlocks       [][]byte
	erases        int
	versions      int
	bauds         []int

	rejectAt  map[uint32]bsl.Message
	corruptAt map[uint32]bool
	simulated bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		mem:       map[uint32][]byte{},
		rejectAt:  map[uint32]bsl.Message{},
		corruptAt: map[uint32]bool{},
	}
}

func (d *fakeDevice) Unlock(password []byte) (bsl.Message, error) {
	d.unlocks = append(d.unlocks, password)
	return bsl.MsgSuccess, nil
}

func (d *fakeDevice) MassErase() (bsl.Message, error) {
	d.erases++
	return bsl.MsgSuccess, nil
}

func (d *fakeDevice) Version() ([]byte, error) {
	d.versions++
	return []byte{0x00, 0x06, 0x06, 0x03}, nil
}

func (d *fakeDevice) Write(addr uint32, data []byte) (bsl.Message, error) {
	d.writeAttempts++
	if msg, ok := d.rejectAt[addr]; ok {
		return msg, nil
	}
	d.writes = append(d.writes, addr)
	d.writeLens = append(d.writeLens, len(data))
	d.mem[addr] = append([]byte(nil), data...)
	return bsl.MsgSuccess, nil
}

func (d *fakeDevice) CrcCheck(addr uint32, length uint16) (uint16, error) {
	d.crcCalls = append(d.crcCalls, crcCall{addr: addr, length: length})
	crc := bsl.Crc16(d.mem[addr])
	if d.corruptAt[addr] {
		return ^crc, nil
	}
	return crc, nil
}

func (d *fakeDevice) LoadPC(addr uint32) error {
	d.jumps = append(d.jumps, addr)
	return nil
}

func (d *fakeDevice) ChangeBaud(rate int) error {
	d.bauds = append(d.bauds, rate)
	return nil
}

func (d *fakeDevice) Simulated() bool { return d.simulated }

func testImage(n int) []byte {
	image := make([]byte, n)
	for i := range image {
		image[i] = byte(i * 7)
	}
	return image
}

func TestFlash300ByteImage(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev)

	if err := f.Flash(testImage(300), 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	wantAddrs := []uint32{0x4400, 0x4500}
	wantLens := []int{256, 44}

	if len(dev.writes) != len(wantAddrs) {
		t.Fatalf("write calls = %d, want %d", len(dev.writes), len(wantAddrs))
	}
	for i := range wantAddrs {
		if dev.writes[i] != wantAddrs[i] || dev.writeLens[i] != wantLens[i] {
			t.Errorf("write %d = (0x%06x, %d bytes), want (0x%06x, %d bytes)",
				i, dev.writes[i], dev.writeLens[i], wantAddrs[i], wantLens[i])
		}
	}

	if len(dev.crcCalls) != len(wantAddrs) {
		t.Fatalf("crc calls = %d, want %d", len(dev.crcCalls), len(wantAddrs))
	}
	for i := range wantAddrs {
		if dev.crcCalls[i].addr != wantAddrs[i] || int(dev.crcCalls[i].length) != wantLens[i] {
			t.Errorf("crc call %d = (0x%06x, %d), want (0x%06x, %d)",
				i, dev.crcCalls[i].addr, dev.crcCalls[i].length, wantAddrs[i], wantLens[i])
		}
	}

	if len(dev.jumps) != 1 || dev.jumps[0] != 0x4400 {
		t.Errorf("jumps = %#x, want one jump to 0x4400", dev.jumps)
	}
	if len(dev.unlocks) != 1 || dev.unlocks[0] != nil {
		t.Errorf("unlocks = %v, want one unlock with default password", dev.unlocks)
	}
	if dev.versions != 1 {
		t.Errorf("version queries = %d, want 1", dev.versions)
	}
}

func TestFlashExactMultipleOfChunkSize(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev)

	if err := f.Flash(testImage(512), 0x8000); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	if len(dev.writes) != 2 {
		t.Fatalf("write calls = %d, want 2", len(dev.writes))
	}
	if dev.writeLens[0] != 256 || dev.writeLens[1] != 256 {
		t.Errorf("write lengths = %v, want [256 256]", dev.writeLens)
	}
}

func TestFlashZeroLengthImage(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev)

	if err := f.Flash(nil, 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	if dev.writeAttempts != 0 || len(dev.crcCalls) != 0 {
		t.Error("degenerate image issued device commands")
	}
	if len(dev.jumps) != 1 {
		t.Errorf("jumps = %d, want 1", len(dev.jumps))
	}
}

func TestWritePhaseAbortsOnRejection(t *testing.T) {
	dev := newFakeDevice()
	dev.rejectAt[0x4464] = bsl.MsgMemWriteCheckFailed
	f := New(dev, WithChunkSize(100))

	err := f.Flash(testImage(300), 0x4400)

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error = %v, want WriteError", err)
	}
	if werr.Address != 0x4464 {
		t.Errorf("failing address = 0x%06x, want 0x4464", werr.Address)
	}
	if werr.Message != bsl.MsgMemWriteCheckFailed {
		t.Errorf("message = %s, want memory write check failed", werr.Message)
	}
	if dev.writeAttempts != 2 {
		t.Errorf("write attempts = %d, want 2 (no chunks after the failure)", dev.writeAttempts)
	}
}

func TestVerifyAbortsAtFirstMismatch(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptAt[0x4464] = true
	f := New(dev, WithChunkSize(100))

	err := f.Flash(testImage(300), 0x4400)

	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want VerifyError", err)
	}
	if verr.Address != 0x4464 {
		t.Errorf("failing address = 0x%06x, want 0x4464", verr.Address)
	}
	if len(dev.crcCalls) != 2 {
		t.Errorf("crc calls = %d, want 2 (no chunks after the mismatch)", len(dev.crcCalls))
	}
}

func TestJumpGatedOnVerifyFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptAt[0x4400] = true
	f := New(dev)

	if err := f.Flash(testImage(100), 0x4400); err == nil {
		t.Fatal("verify mismatch did not surface")
	}
	if len(dev.jumps) != 0 {
		t.Error("jumped to unverified flash without JumpAlways")
	}
}

func TestJumpAlwaysIgnoresVerifyFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptAt[0x4400] = true
	f := New(dev, WithJumpAlways(true))

	if err := f.Flash(testImage(100), 0x4400); err == nil {
		t.Fatal("verify mismatch did not surface")
	}
	if len(dev.jumps) != 1 {
		t.Error("JumpAlways did not issue the execution jump")
	}
}

func TestChunkSizeOption(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev, WithChunkSize(100))

	if err := f.Flash(testImage(250), 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	wantAddrs := []uint32{0x4400, 0x4464, 0x44C8}
	wantLens := []int{100, 100, 50}
	for i := range wantAddrs {
		if dev.writes[i] != wantAddrs[i] || dev.writeLens[i] != wantLens[i] {
			t.Errorf("write %d = (0x%06x, %d), want (0x%06x, %d)",
				i, dev.writes[i], dev.writeLens[i], wantAddrs[i], wantLens[i])
		}
	}
}

func TestChunkSizeClampedToDeviceLimit(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev, WithChunkSize(4096))

	if f.config.ChunkSize != bsl.MaxChunkSize {
		t.Errorf("chunk size = %d, want %d", f.config.ChunkSize, bsl.MaxChunkSize)
	}
}

func TestProgressEvents(t *testing.T) {
	dev := newFakeDevice()

	var events []Progress
	f := New(dev, WithProgress(func(p Progress) {
		events = append(events, p)
	}))

	if err := f.Flash(testImage(300), 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	// Two write events followed by two verify events
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	for i, want := range []Progress{
		{Phase: PhaseWrite, Bytes: 256, Total: 300},
		{Phase: PhaseWrite, Bytes: 300, Total: 300},
		{Phase: PhaseVerify, Bytes: 256, Total: 300},
		{Phase: PhaseVerify, Bytes: 300, Total: 300},
	} {
		if events[i] != want {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want)
		}
	}
}

func TestMassEraseAndBaudRateOptions(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev, WithMassErase(true), WithBaudRate(38400))

	if err := f.Flash(testImage(10), 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	if dev.erases != 1 {
		t.Errorf("mass erases = %d, want 1", dev.erases)
	}
	if len(dev.bauds) != 1 || dev.bauds[0] != 38400 {
		t.Errorf("baud changes = %v, want [38400]", dev.bauds)
	}
}

func TestPasswordOption(t *testing.T) {
	dev := newFakeDevice()
	passwd := make([]byte, bsl.PasswordLength)
	f := New(dev, WithPassword(passwd))

	if err := f.Flash(testImage(10), 0x4400); err != nil {
		t.Fatalf("Flash: %v", err)
	}

	if len(dev.unlocks) != 1 || len(dev.unlocks[0]) != bsl.PasswordLength {
		t.Errorf("unlocks = %v, want one unlock with the supplied password", dev.unlocks)
	}
}

func TestSimulatedDeviceSkipsVerification(t *testing.T) {
	dev := newFakeDevice()
	dev.simulated = true
	dev.corruptAt[0x4400] = true
	f := New(dev)

	if err := f.Flash(testImage(100), 0x4400); err != nil {
		t.Fatalf("Flash on simulated device: %v", err)
	}
	if len(dev.crcCalls) != 0 {
		t.Error("simulated run issued CrcCheck commands")
	}
}

func TestRunUnlocksAndJumps(t *testing.T) {
	dev := newFakeDevice()
	f := New(dev)

	if err := f.Run(0x4400); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dev.unlocks) != 1 {
		t.Errorf("unlocks = %d, want 1", len(dev.unlocks))
	}
	if len(dev.jumps) != 1 || dev.jumps[0] != 0x4400 {
		t.Errorf("jumps = %#x, want one jump to 0x4400", dev.jumps)
	}
	if dev.writeAttempts != 0 {
		t.Error("Run issued write commands")
	}
}
