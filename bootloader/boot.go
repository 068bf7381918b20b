package bootloader

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kcuzner/midi-fader/protocol"
	"github.com/kcuzner/midi-fader/storage"
)

// Storage keys owned by the bootloader.
const (
	// KeyUserVTOR persists the user program's vector table address. Zero
	// or absent means no valid user image.
	KeyUserVTOR uint16 = 0x0001

	// KeyBootMagic persists the single-shot skip value (protocol.SkipMagic)
	// that overrides the reset-cause check for exactly one boot.
	KeyBootMagic uint16 = 0x0002
)

// ResetCause is the set of latched reset-cause flags, read once at boot.
type ResetCause uint32

const (
	ResetPin ResetCause = 1 << iota
	ResetPowerOn
	ResetSoftware
	ResetIndependentWatchdog
	ResetWindowWatchdog
)

// System abstracts the hardware operations the bootloader needs beyond
// flash: reset-cause inspection and the two ways out of the bootloader.
type System interface {
	// ResetCause returns the latched reset-cause flags.
	ResetCause() ResetCause

	// ClearResetCause clears the latched flags so they cannot leak into
	// the next boot's decision.
	ClearResetCause()

	// Reset performs a full system reset. On hardware it does not return;
	// a simulated system returns so the caller can model the reboot.
	Reset()

	// Boot transfers control to the user program whose vector table is at
	// vtor. On hardware it does not return.
	Boot(vtor uint32)
}

// mandatesBootloader reports whether the reset cause alone requires
// staying in the bootloader: any watchdog reset, a soft reset, or a pin
// reset that is not part of a power-on sequence.
func mandatesBootloader(cause ResetCause) bool {
	if cause&(ResetIndependentWatchdog|ResetWindowWatchdog|ResetSoftware) != 0 {
		return true
	}
	if cause&ResetPin != 0 && cause&ResetPowerOn == 0 {
		return true
	}
	return false
}

// SelectBoot runs the reset-time boot decision. It returns true if
// control was handed to the user program via System.Boot, false if the
// device should fall through into the bootloader FSM.
//
// Any storage failure reads as "no valid user image": a device that
// cannot read its own configuration stays in the bootloader, where it can
// be reflashed. The reset-cause flags are always cleared, and a consumed
// skip magic is always cleared (single shot), both regardless of outcome.
func SelectBoot(store *storage.Store, system System, opts ...Option) bool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.Logger

	vtor := readKey(store, KeyUserVTOR, log)
	magic := readKey(store, KeyBootMagic, log)

	stay := mandatesBootloader(system.ResetCause())
	system.ClearResetCause()

	if vtor == 0 || (stay && magic != protocol.SkipMagic) {
		log.WithFields(logrus.Fields{
			"vtor":       vtor,
			"mandatory":  stay,
			"skip_magic": magic == protocol.SkipMagic,
		}).Info("staying in bootloader")
		return false
	}

	if magic != 0 {
		// Consume the single-shot skip value. Best effort: a failure here
		// means one extra bootloader entry later, nothing worse.
		if err := store.WriteUint32(KeyBootMagic, 0); err != nil {
			log.WithError(err).Warn("failed to clear skip magic")
		}
	}

	log.WithField("vtor", vtor).Info("booting user program")
	system.Boot(vtor)
	return true
}

func readKey(store *storage.Store, key uint16, log logrus.FieldLogger) uint32 {
	v, err := store.ReadUint32(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warnf("reading key 0x%04X: %v", key, err)
		}
		return 0
	}
	return v
}
