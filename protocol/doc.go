// Package protocol defines the HID report protocol spoken between the
// midi-fader bootloader and a host programmer.
//
// Every report is exactly 64 bytes in both directions. The host drives a
// strict request/response rhythm: each OUT report — commands and the two
// raw data halves of a PROGRAM transaction alike — is answered by exactly
// one IN status report. The only exception is a successful EXIT or ABORT,
// where the device resets instead of answering.
//
// OUT report layout (little-endian 32-bit words):
//
//	word 0: command
//	word 1: target address
//	word 2: expected CRC32 of the lower 64-byte half
//	word 3: expected CRC32 of the upper 64-byte half
//
// IN report layout:
//
//	word 0: command being acknowledged
//	word 1: signed status code (zero success, negative failure)
//	word 2: computed CRC32 of the lower half
//	word 3: computed CRC32 of the upper half
//	bytes 16..63: command-specific data
//
// The CRC32 is the zlib variant (polynomial 0xEDB88320, inverted output),
// which is what hash/crc32's IEEE functions compute.
package protocol
