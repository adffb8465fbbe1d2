package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/jmllr/msp430-flash/bsl"
	"github.com/jmllr/msp430-flash/elf2bin"
	"github.com/jmllr/msp430-flash/flash"
	"github.com/jmllr/msp430-flash/memory"
)

func main() {
	flagPort := flag.String("port", "/dev/ttyACM0", "Serial port of the MSP430 BSL")
	flagFile := flag.String("file", "", "Firmware image to flash (raw binary, Intel HEX or ELF)")
	flagAddr := flag.Uint("address", 0x4400, "Flash start address")
	flagBaud := flag.Int("baud", 0, "Switch to this baudrate after unlock (best effort)")
	flagErase := flag.Bool("erase", false, "Mass erase the flash before programming")
	flagRun := flag.Bool("run", false, "Only unlock the BSL and jump to the start address")
	flagRead := flag.String("read", "", "Dump device memory instead of flashing, format addr:length (hex)")
	flagJumpAlways := flag.Bool("jump-always", false, "Jump to the start address even if write or verify failed")
	flagVerbose := flag.Bool("verbose", false, "Trace protocol frames")

	flag.Parse()

	sess := bsl.Open(*flagPort, *flagVerbose)
	defer sess.Close()

	switch {
	case *flagRun:
		f := flash.New(sess)
		if err := f.Run(uint32(*flagAddr)); err != nil {
			log.Fatal(err)
		}
	case *flagRead != "":
		if err := dump(sess, *flagRead); err != nil {
			log.Fatal(err)
		}
	case *flagFile != "":
		if err := flashFile(sess, *flagFile, uint32(*flagAddr), *flagErase, *flagBaud, *flagJumpAlways); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Successfully finished flashing")
	default:
		fmt.Println("Run with -help to show available flags")
	}
}

func flashFile(sess *bsl.Session, path string, addr uint32, erase bool, baud int, jumpAlways bool) error {
	binPath, cleanup, err := elf2bin.Convert(path)
	if err != nil {
		return err
	}
	defer cleanup()

	var img *memory.Image
	if strings.HasSuffix(strings.ToLower(binPath), ".hex") {
		img, err = memory.LoadHexFile(binPath)
	} else {
		img, err = memory.LoadBinFile(binPath, addr)
	}
	if err != nil {
		return err
	}

	f := flash.New(sess,
		flash.WithMassErase(erase),
		flash.WithBaudRate(baud),
		flash.WithJumpAlways(jumpAlways),
		flash.WithProgress(progressDisplay()),
	)

	return f.Flash(img.Data, img.Start)
}

// progressDisplay renders write and verify progress as a byte-count bar,
// one bar per phase.
func progressDisplay() flash.ProgressFunc {
	var bar *progressbar.ProgressBar
	var phase flash.Phase

	return func(p flash.Progress) {
		if bar == nil || phase != p.Phase {
			phase = p.Phase
			desc := "Flashing"
			if p.Phase == flash.PhaseVerify {
				desc = "Verifying"
			}
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription(desc),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
			)
		}

		bar.Set(p.Bytes)
		if p.Bytes >= p.Total {
			fmt.Println()
		}
	}
}

// dump reads a memory range from the device and hex-dumps it to stdout.
// The spec string is addr:length, both hex.
func dump(sess *bsl.Session, spec string) error {
	addrStr, lenStr, ok := strings.Cut(spec, ":")
	if !ok {
		return fmt.Errorf("invalid read range %q, expected addr:length", spec)
	}

	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 24)
	if err != nil {
		return fmt.Errorf("invalid read address %q: %v", addrStr, err)
	}
	length, err := strconv.ParseUint(strings.TrimPrefix(lenStr, "0x"), 16, 16)
	if err != nil {
		return fmt.Errorf("invalid read length %q: %v", lenStr, err)
	}

	data, err := sess.Read(uint32(addr), uint16(length))
	if err != nil {
		return err
	}

	_, err = os.Stdout.WriteString(hex.Dump(data))
	return err
}
