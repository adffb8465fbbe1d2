package flash

import "github.com/jmllr/msp430-flash/bsl"

// Phase names a flashing phase for progress reporting.
type Phase string

const (
	PhaseWrite  Phase = "write"
	PhaseVerify Phase = "verify"
)

// Progress is a byte-count progress event. Purely observational, it feeds
// no information back into the flashing control flow.
type Progress struct {
	Phase Phase
	Bytes int
	Total int
}

// ProgressFunc consumes progress events during the write and verify
// phases. Implementations should return quickly.
type ProgressFunc func(Progress)

// Config holds the flasher configuration.
type Config struct {
	// ChunkSize is the number of bytes per Write command, at most
	// bsl.MaxChunkSize
	ChunkSize int

	// Password unlocks the BSL; nil means the factory default
	Password []byte

	// BaudRate, when non-zero, is requested from the device after
	// unlock (best effort)
	BaudRate int

	// MassErase erases the whole flash before unlocking
	MassErase bool

	// JumpAlways issues the execution jump even after a failed write or
	// verify phase. Off by default: jumping into unverified flash is
	// rarely what you want.
	JumpAlways bool

	// Progress receives byte-count events during write and verify
	Progress ProgressFunc
}

func defaultConfig() Config {
	return Config{
		ChunkSize: bsl.MaxChunkSize,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithChunkSize sets the bytes per Write command, clamped to the device
// write buffer limit.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= bsl.MaxChunkSize {
			c.ChunkSize = size
		}
	}
}

// WithPassword sets the 32-byte BSL unlock password.
func WithPassword(password []byte) Option {
	return func(c *Config) {
		c.Password = password
	}
}

// WithBaudRate requests a baudrate switch after unlock.
func WithBaudRate(rate int) Option {
	return func(c *Config) {
		c.BaudRate = rate
	}
}

// WithMassErase enables a mass erase before unlocking.
func WithMassErase(erase bool) Option {
	return func(c *Config) {
		c.MassErase = erase
	}
}

// WithJumpAlways makes the execution jump unconditional.
func WithJumpAlways(always bool) Option {
	return func(c *Config) {
		c.JumpAlways = always
	}
}

// WithProgress sets the progress event consumer.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}
