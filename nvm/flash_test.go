package nvm

import (
	"errors"
	"testing"
)

const simBase = 0x08000000

func TestWriteHalfword(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Sim, f *Flash)
		addr    uint32
		value   uint16
		wantErr error
	}{
		{
			name:  "program erased cell",
			addr:  simBase + 0x10,
			value: 0xBEEF,
		},
		{
			name: "tombstone zero over programmed cell",
			setup: func(t *testing.T, _ *Sim, f *Flash) {
				if err := f.WriteHalfword(simBase+0x10, 0x1234); err != nil {
					t.Fatalf("setup write: %v", err)
				}
			},
			addr:  simBase + 0x10,
			value: 0x0000,
		},
		{
			name: "program over programmed cell faults",
			setup: func(t *testing.T, _ *Sim, f *Flash) {
				if err := f.WriteHalfword(simBase+0x10, 0x1234); err != nil {
					t.Fatalf("setup write: %v", err)
				}
			},
			addr:    simBase + 0x10,
			value:   0x5678,
			wantErr: ErrProgram,
		},
		{
			name: "write protected",
			setup: func(_ *testing.T, s *Sim, _ *Flash) {
				s.Protect(simBase, simBase+0x400)
			},
			addr:    simBase + 0x10,
			value:   0xBEEF,
			wantErr: ErrWriteProtect,
		},
		{
			name: "power loss reports programming fault",
			setup: func(_ *testing.T, s *Sim, _ *Flash) {
				s.PowerLossAfter(0)
			},
			addr:    simBase + 0x10,
			value:   0xBEEF,
			wantErr: ErrProgram,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSim(simBase, 0x800)
			flash := New(sim)
			if tt.setup != nil {
				tt.setup(t, sim, flash)
			}

			err := flash.WriteHalfword(tt.addr, tt.value)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WriteHalfword() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := flash.ReadHalfword(tt.addr); got != tt.value {
				t.Errorf("read back 0x%04X, want 0x%04X", got, tt.value)
			}
		})
	}
}

func TestWriteHalfwordPowerLossLeavesCellUntouched(t *testing.T) {
	sim := NewSim(simBase, 0x800)
	flash := New(sim)

	sim.PowerLossAfter(0)
	if err := flash.WriteHalfword(simBase, 0xBEEF); err == nil {
		t.Fatal("expected error after power loss, got nil")
	}

	sim.PowerOn()
	if got := flash.ReadHalfword(simBase); got != 0xFFFF {
		t.Errorf("cell = 0x%04X after lost write, want erased 0xFFFF", got)
	}
}

func TestErasePage(t *testing.T) {
	sim := NewSim(simBase, 0x800)
	flash := New(sim)

	for i := uint32(0); i < 8; i++ {
		if err := flash.WriteHalfword(simBase+i*2, 0x1100+uint16(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	// A cell in the second page must survive the erase of the first.
	if err := flash.WriteHalfword(simBase+0x400, 0x2222); err != nil {
		t.Fatalf("write second page: %v", err)
	}

	// Any address within the page erases the whole page.
	if err := flash.ErasePage(simBase + 0x20); err != nil {
		t.Fatalf("ErasePage() error = %v", err)
	}

	for i := uint32(0); i < 0x400; i += 2 {
		if got := flash.ReadHalfword(simBase + i); got != 0xFFFF {
			t.Fatalf("halfword at +0x%X = 0x%04X, want 0xFFFF", i, got)
		}
	}
	if got := flash.ReadHalfword(simBase + 0x400); got != 0x2222 {
		t.Errorf("second page halfword = 0x%04X, want 0x2222", got)
	}
}

func TestErasePageWriteProtected(t *testing.T) {
	sim := NewSim(simBase, 0x800, WithWriteProtect(simBase, simBase+0x400))
	flash := New(sim)

	err := flash.ErasePage(simBase)
	if !errors.Is(err, ErrEraseWriteProtect) {
		t.Fatalf("ErasePage() error = %v, want %v", err, ErrEraseWriteProtect)
	}
}

func TestForcedStatusVerifyMismatch(t *testing.T) {
	sim := NewSim(simBase, 0x800)
	flash := New(sim)

	// The hardware claims success but never touched the cell.
	sim.ForceStatus(StatusEndOfOperation)
	err := flash.WriteHalfword(simBase, 0xBEEF)
	if !errors.Is(err, ErrVerify) {
		t.Fatalf("WriteHalfword() error = %v, want %v", err, ErrVerify)
	}
}

func TestReadAt(t *testing.T) {
	sim := NewSim(simBase, 0x800)
	flash := New(sim)

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	for i := 0; i < len(want); i += 2 {
		hw := uint16(want[i])
		if i+1 < len(want) {
			hw |= uint16(want[i+1]) << 8
		}
		if err := flash.WriteHalfword(simBase+uint32(i), hw); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got := make([]byte, 5)
	flash.ReadAt(got, simBase)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, got[i], want[i])
		}
	}
}

func TestStatusCode(t *testing.T) {
	err := &Error{Code: CodeVerify, Addr: 0x08001000}
	if err.StatusCode() != CodeVerify {
		t.Errorf("StatusCode() = %d, want %d", err.StatusCode(), CodeVerify)
	}
	if !errors.Is(err, ErrVerify) {
		t.Error("address-qualified error should match the bare sentinel")
	}
	if errors.Is(err, ErrProgram) {
		t.Error("error should not match a different code")
	}
}
