// Package bootloader implements the device side of the midi-fader
// bootloader: the report-driven programming state machine and the boot
// selection logic that decides between the bootloader and the user
// program at reset.
//
// The Session type consumes USB HID events (configuration, OUT report
// received, IN report sent) and reacts by programming flash, persisting
// the user program entry point, and queueing status reports on its
// Transport. It never blocks; each event is handled to completion, which
// mirrors how the interrupt-driven firmware behaves.
//
// SelectBoot implements the reset-time decision: watchdog, soft, and
// bare pin resets keep the device in the bootloader unless the stored
// single-shot skip magic says otherwise, and a device with no persisted
// entry point always stays in the bootloader.
package bootloader
