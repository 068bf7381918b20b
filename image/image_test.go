package image

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kcuzner/midi-fader/protocol"
)

// Four bytes at 0x08002000 followed by four more at 0x08002008, leaving
// a 4-byte gap that must flatten to 0xFF.
const testHex = `:020000040800F2
:04200000DEADBEEFA4
:04200800112233442A
:00000001FF
`

func TestLoadHex(t *testing.T) {
	img, err := LoadHex(strings.NewReader(testHex))
	if err != nil {
		t.Fatalf("LoadHex() error = %v", err)
	}

	if img.Base != 0x08002000 {
		t.Errorf("Base = 0x%08X, want 0x08002000", img.Base)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFF, 0xFF, 0xFF, 0xFF, 0x11, 0x22, 0x33, 0x44}
	if !bytes.Equal(img.Data, want) {
		t.Errorf("Data = % X, want % X", img.Data, want)
	}
}

func TestLoadHexNoData(t *testing.T) {
	if _, err := LoadHex(strings.NewReader(":00000001FF\n")); err == nil {
		t.Error("expected error for a data-free hex file")
	}
}

func TestLoadBin(t *testing.T) {
	img, err := LoadBin(bytes.NewReader([]byte{0x01, 0x02, 0x03}), 0x08002000)
	if err != nil {
		t.Fatalf("LoadBin() error = %v", err)
	}
	if img.Base != 0x08002000 || len(img.Data) != 3 {
		t.Errorf("image = (0x%08X, %d bytes), want (0x08002000, 3)", img.Base, len(img.Data))
	}

	if _, err := LoadBin(bytes.NewReader(nil), 0x08002000); err == nil {
		t.Error("expected error for empty binary")
	}
}

func TestLoadPicksFormatByExtension(t *testing.T) {
	img, err := Load("firmware.HEX", 0, strings.NewReader(testHex))
	if err != nil {
		t.Fatalf("Load(hex) error = %v", err)
	}
	if img.Base != 0x08002000 {
		t.Errorf("hex Base = 0x%08X, want 0x08002000", img.Base)
	}

	img, err = Load("firmware.bin", 0x08002080, bytes.NewReader([]byte{0xAA}))
	if err != nil {
		t.Fatalf("Load(bin) error = %v", err)
	}
	if img.Base != 0x08002080 {
		t.Errorf("bin Base = 0x%08X, want 0x08002080", img.Base)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		img     Image
		wantErr bool
	}{
		{
			name: "valid",
			img:  Image{Base: 0x08002000, Data: make([]byte, 256)},
		},
		{
			name: "fills region exactly",
			img:  Image{Base: 0x08002000, Data: make([]byte, 0x08007800-0x08002000)},
		},
		{
			name:    "misaligned base",
			img:     Image{Base: 0x08002004, Data: make([]byte, 16)},
			wantErr: true,
		},
		{
			name:    "below region",
			img:     Image{Base: 0x08001000, Data: make([]byte, 16)},
			wantErr: true,
		},
		{
			name:    "runs past region",
			img:     Image{Base: 0x08007780, Data: make([]byte, 256)},
			wantErr: true,
		},
		{
			name:    "empty",
			img:     Image{Base: 0x08002000},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPages(t *testing.T) {
	data := make([]byte, protocol.ProgramPageSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	img := &Image{Base: 0x08002000, Data: data}

	pages := img.Pages()
	if len(pages) != 2 {
		t.Fatalf("len(Pages()) = %d, want 2", len(pages))
	}
	if pages[0].Address != 0x08002000 || pages[1].Address != 0x08002080 {
		t.Errorf("addresses = (0x%08X, 0x%08X)", pages[0].Address, pages[1].Address)
	}
	for _, page := range pages {
		if len(page.Data) != protocol.ProgramPageSize {
			t.Fatalf("page at 0x%08X has %d bytes, want %d", page.Address, len(page.Data), protocol.ProgramPageSize)
		}
	}
	if !bytes.Equal(pages[1].Data[:10], data[protocol.ProgramPageSize:]) {
		t.Error("second page does not start with the image tail")
	}
	for i := 10; i < protocol.ProgramPageSize; i++ {
		if pages[1].Data[i] != 0xFF {
			t.Fatalf("pad byte %d = 0x%02X, want 0xFF", i, pages[1].Data[i])
		}
	}
}
