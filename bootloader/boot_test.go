package bootloader

import (
	"testing"

	"github.com/kcuzner/midi-fader/nvm"
	"github.com/kcuzner/midi-fader/protocol"
	"github.com/kcuzner/midi-fader/storage"
)

func TestSelectBoot(t *testing.T) {
	tests := []struct {
		name      string
		vtor      uint32
		skipMagic bool
		cause     ResetCause
		wantBoot  bool
	}{
		{
			name:     "power on with image boots",
			vtor:     0x08002000,
			cause:    ResetPowerOn | ResetPin,
			wantBoot: true,
		},
		{
			name:     "power on without image stays",
			cause:    ResetPowerOn | ResetPin,
			wantBoot: false,
		},
		{
			name:     "bare pin reset stays",
			vtor:     0x08002000,
			cause:    ResetPin,
			wantBoot: false,
		},
		{
			name:     "soft reset stays",
			vtor:     0x08002000,
			cause:    ResetSoftware,
			wantBoot: false,
		},
		{
			name:     "independent watchdog stays",
			vtor:     0x08002000,
			cause:    ResetIndependentWatchdog,
			wantBoot: false,
		},
		{
			name:     "window watchdog stays",
			vtor:     0x08002000,
			cause:    ResetWindowWatchdog,
			wantBoot: false,
		},
		{
			name:      "skip magic overrides soft reset",
			vtor:      0x08002000,
			skipMagic: true,
			cause:     ResetSoftware,
			wantBoot:  true,
		},
		{
			name:      "skip magic without image still stays",
			skipMagic: true,
			cause:     ResetSoftware,
			wantBoot:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, _ := testStore(t)
			if tt.vtor != 0 {
				if err := store.WriteUint32(KeyUserVTOR, tt.vtor); err != nil {
					t.Fatalf("seed entry point: %v", err)
				}
			}
			if tt.skipMagic {
				if err := store.WriteUint32(KeyBootMagic, protocol.SkipMagic); err != nil {
					t.Fatalf("seed skip magic: %v", err)
				}
			}
			sys := &mockSystem{cause: tt.cause}

			booted := SelectBoot(store, sys, WithLogger(quietLogger()))

			if booted != tt.wantBoot {
				t.Fatalf("SelectBoot() = %v, want %v", booted, tt.wantBoot)
			}
			if !sys.cleared {
				t.Error("reset-cause flags were not cleared")
			}
			if tt.wantBoot {
				if len(sys.boots) != 1 || sys.boots[0] != tt.vtor {
					t.Errorf("boots = %v, want [0x%08X]", sys.boots, tt.vtor)
				}
			} else if len(sys.boots) != 0 {
				t.Errorf("boots = %v, want none", sys.boots)
			}
		})
	}
}

// The skip magic works exactly once: booting consumes it.
func TestSelectBootConsumesSkipMagic(t *testing.T) {
	store, _, _ := testStore(t)
	if err := store.WriteUint32(KeyUserVTOR, 0x08002000); err != nil {
		t.Fatalf("seed entry point: %v", err)
	}
	if err := store.WriteUint32(KeyBootMagic, protocol.SkipMagic); err != nil {
		t.Fatalf("seed skip magic: %v", err)
	}

	sys := &mockSystem{cause: ResetSoftware}
	if !SelectBoot(store, sys, WithLogger(quietLogger())) {
		t.Fatal("first boot attempt should start the user program")
	}
	if v, err := store.ReadUint32(KeyBootMagic); err != nil || v != 0 {
		t.Fatalf("skip magic after boot = (0x%08X, %v), want cleared", v, err)
	}

	// The next soft reset lands back in the bootloader.
	sys = &mockSystem{cause: ResetSoftware}
	if SelectBoot(store, sys, WithLogger(quietLogger())) {
		t.Error("second soft reset should stay in the bootloader")
	}
}

// Storage failures read as "no image": a device that cannot read its own
// configuration must stay reachable for reflashing.
func TestSelectBootStorageFailureStays(t *testing.T) {
	sim := nvm.NewSim(testFlashBase, testFlashSize)
	flash := nvm.New(sim)
	// Never formatted: every read fails with NoStorage.
	store := storage.New(flash, storage.Layout{
		A: storage.Segment{Start: 0x08007800, End: 0x08007C00},
		B: storage.Segment{Start: 0x08007C00, End: 0x08008000},
	})

	sys := &mockSystem{cause: ResetPowerOn | ResetPin}
	if SelectBoot(store, sys, WithLogger(quietLogger())) {
		t.Error("SelectBoot() booted despite unreadable storage")
	}
	if !sys.cleared {
		t.Error("reset-cause flags were not cleared")
	}
}
