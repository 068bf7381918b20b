package image

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/kcuzner/midi-fader/protocol"
)

// Image is a flattened user program: a contiguous byte range starting at
// Base. Gaps from the source file are filled with 0xFF.
type Image struct {
	Base uint32
	Data []byte
}

// Page is one 128-byte programming transaction.
type Page struct {
	Address uint32
	Data    []byte
}

// Load reads an image from path, picking the format from the extension:
// .hex and .ihex parse as Intel HEX, anything else as raw binary placed
// at base. HEX files ignore base.
func Load(path string, base uint32, r io.Reader) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return LoadHex(r)
	default:
		return LoadBin(r, base)
	}
}

// LoadHex parses an Intel HEX image. The lowest segment address becomes
// the image base; gaps between segments are filled with 0xFF.
func LoadHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse intel hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("intel hex file contains no data")
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	base := segments[0].Address
	end := base
	for _, seg := range segments {
		segEnd := seg.Address + uint32(len(seg.Data))
		if segEnd > end {
			end = segEnd
		}
	}

	data := make([]byte, end-base)
	for i := range data {
		data[i] = 0xFF
	}
	for _, seg := range segments {
		copy(data[seg.Address-base:], seg.Data)
	}

	return &Image{Base: base, Data: data}, nil
}

// LoadBin reads a raw binary image placed at base.
func LoadBin(r io.Reader, base uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("binary image is empty")
	}
	return &Image{Base: base, Data: data}, nil
}

// Validate checks the image against the device's programmable region and
// alignment rules before any flash is touched.
func (img *Image) Validate() error {
	if len(img.Data) == 0 {
		return fmt.Errorf("image is empty")
	}
	if img.Base%protocol.ProgramPageSize != 0 {
		return fmt.Errorf("image base 0x%08X is not %d-byte aligned", img.Base, protocol.ProgramPageSize)
	}
	if img.Base < protocol.FlashLowerBound {
		return fmt.Errorf("image base 0x%08X below programmable region 0x%08X",
			img.Base, protocol.FlashLowerBound)
	}
	end := img.Base + uint32(len(img.Data)) - 1
	if end > protocol.FlashUpperBound {
		return fmt.Errorf("image end 0x%08X above programmable region 0x%08X",
			end, protocol.FlashUpperBound)
	}
	return nil
}

// EntryPoint returns the address passed to EXIT after programming: the
// image base, where the vector table lives.
func (img *Image) EntryPoint() uint32 {
	return img.Base
}

// Pages slices the image into 128-byte programming transactions, padding
// the final page with 0xFF.
func (img *Image) Pages() []Page {
	var pages []Page
	for off := 0; off < len(img.Data); off += protocol.ProgramPageSize {
		chunk := img.Data[off:]
		if len(chunk) > protocol.ProgramPageSize {
			chunk = chunk[:protocol.ProgramPageSize]
		}
		pages = append(pages, Page{
			Address: img.Base + uint32(off),
			Data:    protocol.PadPage(chunk),
		})
	}
	return pages
}
