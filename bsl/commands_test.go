package bsl

import (
	"bytes"
	"testing"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{
			name: "write",
			got:  writeCmd(0x4400, []byte{0xAA, 0xBB}),
			want: []byte{0x10, 0x00, 0x44, 0x00, 0xAA, 0xBB},
		},
		{
			name: "write word",
			got:  writeWordCmd(0x012345, 0xBEEF),
			want: []byte{0x10, 0x45, 0x23, 0x01, 0xEF, 0xBE},
		},
		{
			name: "unlock",
			got:  unlockCmd([]byte{0x01, 0x02}),
			want: []byte{0x11, 0x01, 0x02},
		},
		{
			name: "mass erase",
			got:  massEraseCmd(),
			want: []byte{0x15},
		},
		{
			name: "crc check",
			got:  crcCheckCmd(0x012345, 0x0100),
			want: []byte{0x16, 0x45, 0x23, 0x01, 0x00, 0x01},
		},
		{
			name: "load pc",
			got:  loadPCCmd(0x4400),
			want: []byte{0x17, 0x00, 0x44, 0x00},
		},
		{
			name: "read",
			got:  readCmd(0xFFE0, 0x0020),
			want: []byte{0x18, 0xE0, 0xFF, 0x00, 0x20, 0x00},
		},
		{
			name: "version",
			got:  versionCmd(),
			want: []byte{0x19},
		},
		{
			name: "change baud",
			got:  changeBaudCmd(0x06),
			want: []byte{0x52, 0x06},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("payload = % X, want % X", tt.got, tt.want)
			}
		})
	}
}

func TestDefaultPassword(t *testing.T) {
	passwd := DefaultPassword()

	if len(passwd) != PasswordLength {
		t.Fatalf("password length = %d, want %d", len(passwd), PasswordLength)
	}
	for i, b := range passwd {
		if b != 0xFF {
			t.Fatalf("password byte %d = 0x%02X, want 0xFF", i, b)
		}
	}
}
