package memory

import (
	"errors"
	"os"

	"github.com/marcinbor85/gohex"
)

// Image is a flat firmware image placed at Start in the target address
// space. The flasher consumes it as an ordered byte sequence.
type Image struct {
	Start uint32
	Data  []byte
}

// LoadBinFile loads a raw binary image. A flat binary carries no
// placement information, so the start address is supplied by the caller.
func LoadBinFile(path string, start uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &Image{Start: start, Data: data}, nil
}

// LoadHexFile loads an Intel HEX file and flattens its data segments into
// a single image. Gaps between segments are filled with 0xFF, the erased
// flash pattern.
func LoadHexFile(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return nil, err
	}

	return flatten(mem)
}

func flatten(mem *gohex.Memory) (*Image, error) {
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, errors.New("image contains no data segments")
	}

	start := segments[0].Address
	end := start
	for _, seg := range segments {
		if seg.Address < start {
			start = seg.Address
		}
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}

	data := make([]byte, end-start)
	for i := range data {
		data[i] = 0xFF
	}
	for _, seg := range segments {
		copy(data[seg.Address-start:], seg.Data)
	}

	return &Image{Start: start, Data: data}, nil
}
