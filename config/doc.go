// Package config implements the midi-fader configuration HID protocol:
// the command/response surface the running application (not the
// bootloader) exposes for reading and writing the parameters persisted
// in the device's flash store.
//
// Like the bootloader protocol, every report is 64 bytes and strictly
// command/response: word 0 carries the command, words 1..15 carry
// parameters. The Handler type is the device side; Client is the host
// side over any 64-byte report transport.
package config
