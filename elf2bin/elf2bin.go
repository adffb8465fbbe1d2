// Package elf2bin turns an arbitrary input file into a flat binary the
// flasher can consume. ELF images are converted with the external
// msp430-elf-objcopy tool; anything else passes through unchanged.
package elf2bin

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"os/exec"
)

var elfMagic = []byte{0x7F, 'E', 'L', 'F'}

const objcopy = "msp430-elf-objcopy"

// Convert produces a flat binary path from path. For ELF input the result
// is a temporary file; the returned cleanup removes it after the flashing
// run and is safe to call in every case, including errors.
func Convert(path string) (string, func(), error) {
	noop := func() {}

	f, err := os.Open(path)
	if err != nil {
		return "", noop, err
	}
	head := make([]byte, len(elfMagic))
	n, _ := f.Read(head)
	f.Close()

	if n < len(elfMagic) || !bytes.Equal(head, elfMagic) {
		return path, noop, nil
	}

	log.Print("Converting ELF image to flat binary...")

	tmp, err := os.CreateTemp("", "msp430-*.bin")
	if err != nil {
		return "", noop, err
	}
	tmp.Close()
	cleanup := func() { os.Remove(tmp.Name()) }

	cmd := exec.Command(objcopy, "-I", "elf32-msp430", "-O", "binary", path, tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("%s: %v: %s", objcopy, err, out)
	}

	return tmp.Name(), cleanup, nil
}
